// cmd/server/main.go
package main

import (
	"go-bank-gate/app"
)

// @title           Go-Bank Gate API
// @version         1.0
// @description     Token authority and rate governor in front of the Go-Bank API.

// @contact.name   API Support
// @contact.email  support@example.com

// @license.name   MIT
// @license.url    https://opensource.org/licenses/MIT

// @host      localhost:8080
// @BasePath  /
// @securityDefinitions.apikey BearerAuth
// @in header
// @name Authorization
func main() {
	app.Run()
}
