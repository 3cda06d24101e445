// Package auth implements the identity and token lifecycle of the shop
// backend: registration, account activation, login, access token refresh and
// request authentication.
//
// Accounts:
//   - A Credential is created disabled together with a one time numeric
//     ActivationCode in a single transaction. The code is delivered through a
//     Notifier after commit; delivery failures are reported as
//     ErrActivationDelivery and never roll the account back.
//   - Activate consumes the code and enables the account atomically. An
//     expired code issues and dispatches a replacement before failing with
//     ErrActivationCodeExpired.
//   - GrantVendor adds the VENDOR authority. Owners may grant it to
//     themselves, anyone else needs ADMIN.
//
// Tokens:
//   - TokenCodec signs HS256 JWTs with a SigningSecret. Access and refresh
//     tokens carry the same claims and differ only in token_type and expiry.
//   - Refresh returns an explicit RefreshResult. Refresh tokens are never
//     rotated and are rejected by the request authenticator.
//
// Requests:
//   - RequestAuthenticator.Middleware gates every non public fiber route and
//     binds the AuthenticatedIdentity to the request locals and user context.
//
// Activity sinks:
//   - ActivitySink receives best effort audit events from Auther and the
//     activation service. Sink errors are logged, never returned.
package auth
