package normalize

import (
	"strings"

	"github.com/flowmesh/flowmesh/pkg/schema"
)

// rule maps substrings of a lowercased provider error to a normalized form.
// Rules are evaluated in declaration order; the first match wins.
type rule struct {
	match    []string // any substring hit triggers the rule
	code     string
	title    string
	message  string
	action   string
	severity schema.Severity
}

// detectTokens maps a canonical provider name to the substrings that
// identify it inside raw error text when no explicit hint is given.
var detectTokens = map[string][]string{
	"sendgrid": {"sendgrid"},
	"twilio":   {"twilio"},
	"openai":   {"openai", "gpt-", "chatgpt"},
	"stripe":   {"stripe"},
	"slack":    {"slack"},
	"notion":   {"notion"},
	"airtable": {"airtable"},
	"trello":   {"trello"},
	"github":   {"github"},
	"discord":  {"discord"},
	"twitter":  {"twitter", "x.com/2/tweets"},
	"paypal":   {"paypal"},
}

// providerOrder fixes the scan order so detection is deterministic when
// several provider names appear in one message.
var providerOrder = []string{
	"sendgrid", "twilio", "openai", "stripe", "slack", "notion",
	"airtable", "trello", "github", "discord", "twitter", "paypal",
}

// providerRules holds the ordered matcher set per provider.
var providerRules = map[string][]rule{
	"sendgrid": {
		{
			match:    []string{"maximum credits exceeded", "credits exceeded"},
			code:     "SENDGRID_CREDITS_EXCEEDED",
			title:    "Email quota exhausted",
			message:  "Your SendGrid account has used all of its email credits.",
			action:   "Upgrade your SendGrid plan or wait for the daily quota to reset.",
			severity: schema.SeverityError,
		},
		{
			match:    []string{"unauthorized", "invalid api key", "permission denied"},
			code:     "SENDGRID_UNAUTHORIZED",
			title:    "Invalid SendGrid credentials",
			message:  "SendGrid rejected the API key used for this request.",
			action:   "Reconnect your SendGrid account and verify the API key.",
			severity: schema.SeverityError,
		},
		{
			match:    []string{"verified sender identity", "sender identity"},
			code:     "SENDGRID_SENDER_UNVERIFIED",
			title:    "Sender address not verified",
			message:  "The from address has not been verified as a Sender Identity in SendGrid.",
			action:   "Verify the sender address in SendGrid before sending from it.",
			severity: schema.SeverityError,
		},
		{
			match:    []string{"invalid email", "does not contain a valid address"},
			code:     "SENDGRID_INVALID_EMAIL",
			title:    "Invalid email address",
			message:  "One of the recipient or sender addresses is not a valid email.",
			action:   "Check the to/from addresses configured on this step.",
			severity: schema.SeverityError,
		},
		{
			match:    []string{"rate limit", "too many requests"},
			code:     "SENDGRID_RATE_LIMITED",
			title:    "SendGrid rate limit reached",
			message:  "Too many requests were sent to SendGrid in a short period.",
			action:   "Wait a moment and run the workflow again.",
			severity: schema.SeverityWarning,
		},
	},
	"twilio": {
		{
			match:    []string{"unverified", "is not a verified"},
			code:     "TWILIO_UNVERIFIED_NUMBER",
			title:    "Phone number not verified",
			message:  "Trial Twilio accounts can only message verified numbers.",
			action:   "Verify the destination number in Twilio or upgrade the account.",
			severity: schema.SeverityError,
		},
		{
			match:    []string{"not a valid phone number", "invalid 'to' phone number"},
			code:     "TWILIO_INVALID_NUMBER",
			title:    "Invalid phone number",
			message:  "The destination phone number is not in a valid format.",
			action:   "Use E.164 format, e.g. +15551234567.",
			severity: schema.SeverityError,
		},
		{
			match:    []string{"authenticate", "authentication error", "20003"},
			code:     "TWILIO_AUTH_FAILED",
			title:    "Twilio authentication failed",
			message:  "The account SID or auth token is wrong or revoked.",
			action:   "Reconnect your Twilio account with fresh credentials.",
			severity: schema.SeverityError,
		},
		{
			match:    []string{"insufficient funds", "balance"},
			code:     "TWILIO_INSUFFICIENT_FUNDS",
			title:    "Twilio balance too low",
			message:  "The Twilio account balance cannot cover this message.",
			action:   "Top up the Twilio account balance.",
			severity: schema.SeverityError,
		},
		{
			match:    []string{"rate limit", "too many requests"},
			code:     "TWILIO_RATE_LIMITED",
			title:    "Twilio rate limit reached",
			message:  "Messages are being sent faster than Twilio allows.",
			action:   "Slow down message sending and retry.",
			severity: schema.SeverityWarning,
		},
	},
	"openai": {
		{
			match:    []string{"insufficient_quota", "exceeded your current quota"},
			code:     "OPENAI_QUOTA_EXCEEDED",
			title:    "OpenAI quota exhausted",
			message:  "The OpenAI account has no remaining API credits.",
			action:   "Add billing credits to the OpenAI account.",
			severity: schema.SeverityError,
		},
		{
			match:    []string{"invalid api key", "incorrect api key", "unauthorized", "401"},
			code:     "OPENAI_UNAUTHORIZED",
			title:    "Invalid OpenAI credentials",
			message:  "OpenAI rejected the API key used for this request.",
			action:   "Reconnect your OpenAI account and verify the API key.",
			severity: schema.SeverityError,
		},
		{
			match:    []string{"rate limit", "tokens per min"},
			code:     "OPENAI_RATE_LIMITED",
			title:    "OpenAI rate limit reached",
			message:  "Requests are arriving faster than the model's rate limit.",
			action:   "Wait a moment and run the workflow again.",
			severity: schema.SeverityWarning,
		},
		{
			match:    []string{"maximum context length", "context length", "context_length_exceeded"},
			code:     "OPENAI_CONTEXT_LENGTH",
			title:    "Prompt too long",
			message:  "The prompt exceeds the model's maximum context length.",
			action:   "Shorten the prompt or switch to a model with a larger context window.",
			severity: schema.SeverityError,
		},
		{
			match:    []string{"model_not_found", "does not exist or you do not have access"},
			code:     "OPENAI_MODEL_NOT_FOUND",
			title:    "Model unavailable",
			message:  "The requested model does not exist or the account has no access to it.",
			action:   "Pick a model available to this account in the step configuration.",
			severity: schema.SeverityError,
		},
	},
	"stripe": {
		{
			match:    []string{"no such customer", "no such charge", "no such payment_intent"},
			code:     "STRIPE_RESOURCE_NOT_FOUND",
			title:    "Stripe resource not found",
			message:  "The referenced Stripe object does not exist in this account/mode.",
			action:   "Check the ID and whether it belongs to test or live mode.",
			severity: schema.SeverityError,
		},
		{
			match:    []string{"invalid api key provided", "api key", "unauthorized"},
			code:     "STRIPE_UNAUTHORIZED",
			title:    "Invalid Stripe credentials",
			message:  "Stripe rejected the API key used for this request.",
			action:   "Reconnect your Stripe account and verify the secret key.",
			severity: schema.SeverityError,
		},
		{
			match:    []string{"card was declined", "card_declined"},
			code:     "STRIPE_CARD_DECLINED",
			title:    "Card declined",
			message:  "The customer's card was declined by the issuer.",
			action:   "Ask the customer for another payment method.",
			severity: schema.SeverityError,
		},
		{
			match:    []string{"testmode", "test mode", "live mode"},
			code:     "STRIPE_MODE_MISMATCH",
			title:    "Test/live mode mismatch",
			message:  "A test-mode key was used with live objects, or vice versa.",
			action:   "Use matching test or live keys and object IDs.",
			severity: schema.SeverityError,
		},
		{
			match:    []string{"rate limit", "too many requests"},
			code:     "STRIPE_RATE_LIMITED",
			title:    "Stripe rate limit reached",
			message:  "Too many requests were sent to Stripe in a short period.",
			action:   "Wait a moment and run the workflow again.",
			severity: schema.SeverityWarning,
		},
	},
	"slack": {
		{
			match:    []string{"channel_not_found"},
			code:     "SLACK_CHANNEL_NOT_FOUND",
			title:    "Slack channel not found",
			message:  "The channel does not exist or the app cannot see it.",
			action:   "Check the channel name/ID and make sure the app is installed in the workspace.",
			severity: schema.SeverityError,
		},
		{
			match:    []string{"not_in_channel"},
			code:     "SLACK_NOT_IN_CHANNEL",
			title:    "Bot not in channel",
			message:  "The Slack app is not a member of the target channel.",
			action:   "Invite the bot to the channel with /invite.",
			severity: schema.SeverityError,
		},
		{
			match:    []string{"invalid_auth", "token_revoked", "account_inactive"},
			code:     "SLACK_UNAUTHORIZED",
			title:    "Invalid Slack credentials",
			message:  "The Slack token is invalid, revoked, or the account is inactive.",
			action:   "Reconnect your Slack workspace.",
			severity: schema.SeverityError,
		},
		{
			match:    []string{"missing_scope"},
			code:     "SLACK_MISSING_SCOPE",
			title:    "Missing Slack permission",
			message:  "The Slack token lacks a scope required by this operation.",
			action:   "Reinstall the Slack app with the required scopes.",
			severity: schema.SeverityError,
		},
		{
			match:    []string{"ratelimited", "rate limit"},
			code:     "SLACK_RATE_LIMITED",
			title:    "Slack rate limit reached",
			message:  "Messages are being posted faster than Slack allows.",
			action:   "Wait a moment and run the workflow again.",
			severity: schema.SeverityWarning,
		},
	},
	"notion": {
		{
			match:    []string{"could not find page", "could not find database", "object_not_found"},
			code:     "NOTION_NOT_FOUND",
			title:    "Notion page or database not found",
			message:  "The page/database does not exist or is not shared with the integration.",
			action:   "Share the page or database with your Notion integration.",
			severity: schema.SeverityError,
		},
		{
			match:    []string{"api token is invalid", "unauthorized"},
			code:     "NOTION_UNAUTHORIZED",
			title:    "Invalid Notion credentials",
			message:  "Notion rejected the integration token.",
			action:   "Reconnect your Notion workspace.",
			severity: schema.SeverityError,
		},
		{
			match:    []string{"restricted from accessing", "restricted_resource"},
			code:     "NOTION_RESTRICTED",
			title:    "Notion access restricted",
			message:  "The integration is not allowed to access this resource.",
			action:   "Grant the integration access in the page's share settings.",
			severity: schema.SeverityError,
		},
		{
			match:    []string{"validation_error"},
			code:     "NOTION_VALIDATION",
			title:    "Invalid Notion request",
			message:  "The request body does not match the Notion schema for this resource.",
			action:   "Check the property names and types configured on this step.",
			severity: schema.SeverityError,
		},
		{
			match:    []string{"rate limit", "rate_limited"},
			code:     "NOTION_RATE_LIMITED",
			title:    "Notion rate limit reached",
			message:  "Requests are arriving faster than Notion allows.",
			action:   "Wait a moment and run the workflow again.",
			severity: schema.SeverityWarning,
		},
	},
	"airtable": {
		{
			match:    []string{"could not find table", "table_not_found", "not_found"},
			code:     "AIRTABLE_NOT_FOUND",
			title:    "Airtable base or table not found",
			message:  "The base, table, or record does not exist or is not accessible.",
			action:   "Check the base ID and table name in the step configuration.",
			severity: schema.SeverityError,
		},
		{
			match:    []string{"invalid_api_key", "unauthorized", "authentication_required"},
			code:     "AIRTABLE_UNAUTHORIZED",
			title:    "Invalid Airtable credentials",
			message:  "Airtable rejected the API token.",
			action:   "Reconnect your Airtable account and verify the token.",
			severity: schema.SeverityError,
		},
		{
			match:    []string{"invalid_permissions", "not authorized"},
			code:     "AIRTABLE_FORBIDDEN",
			title:    "Insufficient Airtable permissions",
			message:  "The token does not have permission for this base or operation.",
			action:   "Grant the token access to this base with the required scopes.",
			severity: schema.SeverityError,
		},
		{
			match:    []string{"unknown_field_name", "unknown field"},
			code:     "AIRTABLE_UNKNOWN_FIELD",
			title:    "Unknown Airtable field",
			message:  "A field referenced by this step does not exist in the table.",
			action:   "Match the field names to the table's columns exactly.",
			severity: schema.SeverityError,
		},
		{
			match:    []string{"rate limit", "too many requests"},
			code:     "AIRTABLE_RATE_LIMITED",
			title:    "Airtable rate limit reached",
			message:  "Requests are arriving faster than Airtable allows.",
			action:   "Wait a moment and run the workflow again.",
			severity: schema.SeverityWarning,
		},
	},
	"trello": {
		{
			match:    []string{"invalid key", "invalid token", "unauthorized"},
			code:     "TRELLO_UNAUTHORIZED",
			title:    "Invalid Trello credentials",
			message:  "Trello rejected the API key or token.",
			action:   "Reconnect your Trello account.",
			severity: schema.SeverityError,
		},
		{
			match:    []string{"board not found", "card not found", "list not found", "model not found"},
			code:     "TRELLO_NOT_FOUND",
			title:    "Trello resource not found",
			message:  "The board, list, or card referenced by this step does not exist.",
			action:   "Check the board/list/card IDs in the step configuration.",
			severity: schema.SeverityError,
		},
		{
			match:    []string{"unauthorized permission requested"},
			code:     "TRELLO_FORBIDDEN",
			title:    "Insufficient Trello permissions",
			message:  "The token does not grant the permission this operation needs.",
			action:   "Re-authorize Trello with read/write access.",
			severity: schema.SeverityError,
		},
		{
			match:    []string{"rate limit", "too many requests"},
			code:     "TRELLO_RATE_LIMITED",
			title:    "Trello rate limit reached",
			message:  "Requests are arriving faster than Trello allows.",
			action:   "Wait a moment and run the workflow again.",
			severity: schema.SeverityWarning,
		},
	},
	"github": {
		{
			match:    []string{"bad credentials"},
			code:     "GITHUB_UNAUTHORIZED",
			title:    "Invalid GitHub credentials",
			message:  "GitHub rejected the access token.",
			action:   "Reconnect your GitHub account.",
			severity: schema.SeverityError,
		},
		{
			match:    []string{"api rate limit exceeded", "secondary rate limit"},
			code:     "GITHUB_RATE_LIMITED",
			title:    "GitHub rate limit reached",
			message:  "The GitHub API rate limit for this token is exhausted.",
			action:   "Wait for the rate limit window to reset and retry.",
			severity: schema.SeverityWarning,
		},
		{
			match:    []string{"requires authentication"},
			code:     "GITHUB_AUTH_REQUIRED",
			title:    "GitHub authentication required",
			message:  "This operation needs an authenticated GitHub connection.",
			action:   "Connect a GitHub account before running this step.",
			severity: schema.SeverityError,
		},
		{
			match:    []string{"validation failed"},
			code:     "GITHUB_VALIDATION",
			title:    "Invalid GitHub request",
			message:  "GitHub rejected the request payload.",
			action:   "Check the fields configured on this step (e.g. repo, title, labels).",
			severity: schema.SeverityError,
		},
		{
			match:    []string{"not found"},
			code:     "GITHUB_NOT_FOUND",
			title:    "GitHub resource not found",
			message:  "The repository or resource does not exist, or the token cannot see it.",
			action:   "Check the owner/repo spelling and the token's repository access.",
			severity: schema.SeverityError,
		},
	},
	"discord": {
		{
			match:    []string{"unknown channel", "unknown guild"},
			code:     "DISCORD_NOT_FOUND",
			title:    "Discord channel not found",
			message:  "The channel or server referenced by this step does not exist.",
			action:   "Check the channel ID and that the bot is still in the server.",
			severity: schema.SeverityError,
		},
		{
			match:    []string{"missing access", "missing permissions"},
			code:     "DISCORD_FORBIDDEN",
			title:    "Missing Discord permissions",
			message:  "The bot lacks permission to act in this channel.",
			action:   "Grant the bot the required channel permissions.",
			severity: schema.SeverityError,
		},
		{
			match:    []string{"401: unauthorized", "invalid token", "unauthorized"},
			code:     "DISCORD_UNAUTHORIZED",
			title:    "Invalid Discord credentials",
			message:  "Discord rejected the bot token.",
			action:   "Reconnect the Discord bot with a valid token.",
			severity: schema.SeverityError,
		},
		{
			match:    []string{"rate limit", "too many requests"},
			code:     "DISCORD_RATE_LIMITED",
			title:    "Discord rate limit reached",
			message:  "Messages are being sent faster than Discord allows.",
			action:   "Wait a moment and run the workflow again.",
			severity: schema.SeverityWarning,
		},
	},
	"twitter": {
		{
			match:    []string{"could not authenticate"},
			code:     "TWITTER_UNAUTHORIZED",
			title:    "Invalid Twitter credentials",
			message:  "Twitter rejected the API credentials.",
			action:   "Reconnect your Twitter account.",
			severity: schema.SeverityError,
		},
		{
			match:    []string{"duplicate content", "status is a duplicate"},
			code:     "TWITTER_DUPLICATE",
			title:    "Duplicate post",
			message:  "An identical post was published recently.",
			action:   "Vary the post content before publishing again.",
			severity: schema.SeverityWarning,
		},
		{
			match:    []string{"suspended"},
			code:     "TWITTER_SUSPENDED",
			title:    "Twitter account suspended",
			message:  "The connected account is suspended and cannot post.",
			action:   "Resolve the suspension with Twitter before retrying.",
			severity: schema.SeverityError,
		},
		{
			match:    []string{"rate limit", "too many requests"},
			code:     "TWITTER_RATE_LIMITED",
			title:    "Twitter rate limit reached",
			message:  "Requests are arriving faster than Twitter allows.",
			action:   "Wait a moment and run the workflow again.",
			severity: schema.SeverityWarning,
		},
	},
	"paypal": {
		{
			match:    []string{"authentication failed", "invalid client", "invalid_client"},
			code:     "PAYPAL_UNAUTHORIZED",
			title:    "Invalid PayPal credentials",
			message:  "PayPal rejected the client ID or secret.",
			action:   "Reconnect your PayPal account with fresh API credentials.",
			severity: schema.SeverityError,
		},
		{
			match:    []string{"insufficient funds", "instrument_declined"},
			code:     "PAYPAL_PAYMENT_DECLINED",
			title:    "PayPal payment declined",
			message:  "The payment source was declined or lacks funds.",
			action:   "Ask the payer for another funding source.",
			severity: schema.SeverityError,
		},
		{
			match:    []string{"currency_not_supported", "currency"},
			code:     "PAYPAL_CURRENCY",
			title:    "Unsupported currency",
			message:  "The currency configured on this step is not supported for this account.",
			action:   "Use a currency enabled on the PayPal account.",
			severity: schema.SeverityError,
		},
		{
			match:    []string{"rate limit", "too many requests"},
			code:     "PAYPAL_RATE_LIMITED",
			title:    "PayPal rate limit reached",
			message:  "Requests are arriving faster than PayPal allows.",
			action:   "Wait a moment and run the workflow again.",
			severity: schema.SeverityWarning,
		},
	},
}

// detectProvider resolves a canonical provider from an explicit hint or by
// scanning the lowered error text for provider name substrings.
func detectProvider(lowered, hint string) string {
	if hint != "" {
		h := strings.ToLower(hint)
		for _, name := range providerOrder {
			if strings.Contains(h, name) {
				return name
			}
		}
	}
	for _, name := range providerOrder {
		for _, token := range detectTokens[name] {
			if strings.Contains(lowered, token) {
				return name
			}
		}
	}
	return ""
}

// matchProviderRule returns the first rule of the provider whose substrings
// hit the lowered error text.
func matchProviderRule(provider, lowered string) *rule {
	for i := range providerRules[provider] {
		r := &providerRules[provider][i]
		for _, m := range r.match {
			if strings.Contains(lowered, m) {
				return r
			}
		}
	}
	return nil
}
