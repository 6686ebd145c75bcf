// Package auth provides token authentication for the boardd HTTP API.
//
// Callers present an HS256 JWT whose claims carry a Role. Roles map to a
// static set of permissions:
//
//	viewer    board:read
//	operator  board:read board:configure
//	admin     everything, including system:admin (refresh, poll rate)
//
// There is no user database. Tokens are issued out of band with
// `boardd --issue-token <subject> --role <role>`.
package auth
