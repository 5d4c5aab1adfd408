package docs

// @title           Geoengine API
// @version         1.0
// @description     Real-time positioning engine. Arbitrates RTK, GPS and IP location sources, estimates heading and drives the map rendering surface.
// @termsOfService  http://swagger.io/terms/

// @contact.name   API Support
// @contact.url    http://www.swagger.io/support
// @contact.email  support@swagger.io

// @license.name  Apache 2.0
// @license.url   http://www.apache.org/licenses/LICENSE-2.0.html

// @host      localhost:3010
// @BasePath  /
