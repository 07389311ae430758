// Package config loads the gelato runtime configuration: the JSON runtime
// file, the wallet credentials taken from the environment or a .env file,
// and the defaults applied when fields are left empty.
package config
