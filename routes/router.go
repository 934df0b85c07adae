package routes

import (
	"errors"
	"log"
	"net/http"
	"time"

	"dailyvote-bot/handlers"
	"dailyvote-bot/websocket"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
)

// Server wraps the HTTP server of the admin API.
type Server struct {
	*http.Server
}

// SetupRouter builds the gin engine with the API and websocket routes.
func SetupRouter(api *handlers.Controller, ws *websocket.Handler) *gin.Engine {
	router := gin.New()
	router.Use(gin.Logger(), gin.Recovery())

	router.Use(cors.New(cors.Config{
		AllowOrigins:  []string{"*"},
		AllowMethods:  []string{"GET", "POST", "OPTIONS"},
		AllowHeaders:  []string{"Origin", "Content-Type", "Accept", handlers.AdminTokenHeader},
		ExposeHeaders: []string{"Content-Length"},
		MaxAge:        12 * time.Hour,
	}))

	api.RegisterRoutes(router)
	if ws != nil {
		ws.RegisterRoutes(router)
	}
	return router
}

// StartServer serves router on port in the background.
func StartServer(router *gin.Engine, port string) *Server {
	addr := ":" + port
	srv := &Server{
		&http.Server{
			Addr:              addr,
			Handler:           router,
			ReadHeaderTimeout: 10 * time.Second,
		},
	}

	go func() {
		log.Printf("routes: server listening on %s", addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("routes: server failed: %v", err)
		}
	}()

	return srv
}
