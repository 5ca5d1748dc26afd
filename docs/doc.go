// Package docs holds the OpenAPI document for the netsweep API and
// registers it with swag so /swagger/ can serve it.
//
//go:generate swag init -g doc.go -d ./,../internal/api/handlers -o ./ --outputTypes go --parseInternal
package docs

// @title netsweep API
// @version 1.0
// @description Local network discovery: sweep an IPv4 range for live hosts,
// @description scan a fixed set of common TCP ports on each, and keep every
// @description device with its per-sweep history.
//
// @contact.name netsweep
// @contact.url https://github.com/anstrom/netsweep
//
// @license.name MIT
//
// @BasePath /api
//
// @securityDefinitions.apikey ApiKeyAuth
// @in header
// @name X-API-Key
// @description Required on sweep start and schedule changes when api.api_key_hashes is set.
