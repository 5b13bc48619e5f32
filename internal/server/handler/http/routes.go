package http

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	chiMiddleware "github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"github.com/rfidvision/rfidlog/internal/middleware"
)

// NewRouter builds the inventory API.
//
// Routes:
//
//	GET    /rfid-box/{uid}     box by tag (404 when unknown)
//	POST   /rfid-box/          create or replace a box
//	GET    /get-all-boxes      all boxes
//	DELETE /delete-box/{id}    soft-delete a box
//	GET    /item-master        item catalogue
//	GET    /users              all users
//	GET    /check-user?name=   user lookup
//	POST   /add-user           create a user
//	PUT    /update-user/{id}   rename a user
//	DELETE /delete-user/{id}   remove a user
//	GET    /user-items/{id}    what a user holds
//	POST   /create-log         book a station transaction
//
// Bodies must be JSON. Every request is logged, and the station identity
// is taken from the client certificate when there is one.
func NewRouter(
	boxHandler *BoxHandler,
	userHandler *UserHandler,
	logHandler *LogHandler,
	logger *zap.Logger,
) http.Handler {
	r := chi.NewRouter()

	r.Use(chiMiddleware.AllowContentType("application/json"))
	r.Use(middleware.StationIdentity)
	r.Use(middleware.WithRequestLogging(logger))

	r.Get("/rfid-box/{uid}", boxHandler.Get)
	r.Post("/rfid-box/", boxHandler.Save)
	r.Get("/get-all-boxes", boxHandler.List)
	r.Delete("/delete-box/{id}", boxHandler.Delete)
	r.Get("/item-master", boxHandler.ItemMaster)

	r.Get("/users", userHandler.List)
	r.Get("/check-user", userHandler.Check)
	r.Post("/add-user", userHandler.Create)
	r.Put("/update-user/{id}", userHandler.Update)
	r.Delete("/delete-user/{id}", userHandler.Delete)
	r.Get("/user-items/{id}", userHandler.Items)

	r.Post("/create-log", logHandler.Create)

	return r
}
