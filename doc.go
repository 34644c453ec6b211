// Package auth provides user account management: registration with email
// activation, password login, persistent "remember me" logins, password
// resets and a bitmask ACL.
//
// Accounts:
//   - AccountManager is long lived and safe to share. It talks to a
//     UserRepository (bun backed Users or MemoryUsers), a Mailer and a
//     CryptoProvider. Registration and password reset mails are sent inside
//     the same repository transaction as the write, so a failed send rolls
//     the account back.
//   - AccountStateMachine owns the status graph: unactivated to activated,
//     activated to banned and back. Hooks and ActorRef metadata travel with
//     every transition.
//
// Requests:
//   - Scope carries the per request Session and CookieManager. Cookie writes
//     are buffered until PostProcess, which flushes them and commits the
//     session. The fiberauth package wires this into a fiber middleware.
//   - GetIdentity resolves the logged in identity once per Scope, falling back
//     to the remember-me cookie when the session is empty.
//
// Activity sinks:
//   - ActivitySink receives registration, login, reset and status events.
//     Sinks run best-effort (errors are logged) so you can forward to a
//     database or queue without blocking the account flows.
package auth
