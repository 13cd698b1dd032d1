// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

// Package httpapi exposes the auth service over HTTP/JSON.
//
//	POST /login         {username, password}         user, account, session, authHeader
//	POST /login/admin   {username, password}         user, session, authHeader
//	POST /login/forgot  {email}                      {"message": "Success."}
//	POST /login/reset   {email, key, password}       {"message": "Success."}
//	GET  /session       Authorization: Basic id:key  session
//
// Failures are {"code", "message"} with a status derived from auth.KindOf.
package httpapi
