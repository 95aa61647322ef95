package main

import (
	"github.com/gin-gonic/gin"

	"github.com/dudaji/dudaji-chat/internal/handlers"
)

type Handlers struct {
	Auth      *handlers.AuthHandler
	User      *handlers.UserHandler
	Room      *handlers.RoomHandler
	Message   *handlers.HTTPMessageHandler
	File      *handlers.FileHandler
	WebSocket *handlers.WebSocketHandler
}

type Middleware struct {
	Auth      gin.HandlerFunc
	WSAuth    gin.HandlerFunc
	RateLimit gin.HandlerFunc
}

func APIEndpoints(r *gin.Engine, h Handlers, mw Middleware) {
	// Auth endpoints
	authGroup := r.Group("/auth", mw.RateLimit)
	{
		authGroup.POST("/register", h.Auth.Register)
		authGroup.POST("/login", h.Auth.Login)
		authGroup.POST("/logout", mw.Auth, h.Auth.Logout)
	}

	r.GET("/files/*path", h.File.ServeFile)
	r.GET("/ws", mw.WSAuth, h.WebSocket.HandleWebSocket)

	// API endpoints
	api := r.Group("/api/v1", mw.Auth, mw.RateLimit)
	{
		api.GET("/me", h.User.GetMe)
		api.GET("/users/:uid", h.User.GetUser)

		api.GET("/rooms", h.Room.ListRooms)
		api.POST("/rooms", h.Room.CreateRoom)
		api.GET("/rooms/search", h.Room.SearchRooms)

		room := api.Group("/rooms/:id")
		{
			room.GET("/members", h.Room.GetMembers)
			room.DELETE("/members/me", h.Room.LeaveRoom)
			room.GET("/state", h.Room.GetState)
			room.POST("/join", h.Room.JoinRoom)
			room.PUT("/presence", h.Room.SetPresence)

			room.POST("/join-requests", h.Room.SendJoinRequest)
			room.GET("/join-requests", h.Room.ListJoinRequests)
			room.POST("/join-requests/:uid/approve", h.Room.ApproveJoinRequest)
			room.DELETE("/join-requests/:uid", h.Room.RejectJoinRequest)

			room.GET("/messages", h.Message.GetRoomMessages)
			room.POST("/messages", h.Message.SendMessage)
			room.GET("/messages/search", h.Message.SearchMessages)
			room.POST("/files", h.Message.UploadFile)
		}
	}
}
