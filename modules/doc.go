// Package modules is the fixed table behind the guest's require.
//
// Only the names listed here resolve. A miss is a hard failure: explicit
// imports are expected to succeed, so an unknown name means the guest
// program is broken. Module callbacks use Node's error-first order.
package modules
