package main

// General API documentation for swaggo. Run `make swagger-gen` to generate docs.
//
// @title           segmentd API
// @version         1.0
// @description     HTTP API for batched image segmentation inference.
//
// @contact.name   segmentd maintainers
// @contact.url    https://github.com/your-org/segmentd
//
// @license.name   MIT
// @license.url    https://opensource.org/licenses/MIT
//
// @BasePath  /
//
// @schemes http
