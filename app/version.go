// This code is available on the terms of the project LICENSE.md file,
// also available online at https://blueoakcouncil.org/license/1.0.0.

package app

// Version is the semantic version of the application.
const Version = "0.1.0-pre"
