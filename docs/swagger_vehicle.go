package docs

// @title           Vehicle Service API
// @version         1.0
// @description     Vehicle service acquires positions from the on-board sensor or the route simulator and transmits them to the tracking hub. Exposes only health and metrics endpoints; the tracking work happens in the producer pipeline.
// @termsOfService  http://swagger.io/terms/

// @contact.name   API Support
// @contact.url    http://www.swagger.io/support
// @contact.email  support@swagger.io

// @license.name  Apache 2.0
// @license.url   http://www.apache.org/licenses/LICENSE-2.0.html

// @host      localhost:3001
// @BasePath  /

// @securityDefinitions.apikey BearerAuth
// @in header
// @name Authorization
// @description Type "Bearer" followed by a space and JWT token.
