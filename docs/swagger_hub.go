package docs

// @title           Tracking Hub API
// @version         1.0
// @description     Hub service authenticates long-lived connections, ingests vehicle position fixes over WebSocket and HTTP, owns authoritative trip state and multicasts updates to subscribed fleet rooms. Stop arrival estimates are derived on demand.
// @termsOfService  http://swagger.io/terms/

// @contact.name   API Support
// @contact.url    http://www.swagger.io/support
// @contact.email  support@swagger.io

// @license.name  Apache 2.0
// @license.url   http://www.apache.org/licenses/LICENSE-2.0.html

// @host      localhost:3000
// @BasePath  /

// @securityDefinitions.apikey BearerAuth
// @in header
// @name Authorization
// @description Type "Bearer" followed by a space and JWT token.
