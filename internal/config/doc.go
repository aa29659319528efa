// Package config resolves the settings of a langforge run. Values are layered
// in increasing precedence: built-in defaults, HCL configuration files, a
// .env file, the process environment, and finally command-line flags applied
// by the caller.
//
// HCL files are evaluated with an `env` object in scope, so a file may write
//
//	api_key = env.OPENAI_API_KEY
//
// to reference the environment explicitly.
package config
