package handlers

import (
	"net/http"

	"github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"

	"github.com/ViniciusThi/GuiVans/realtime"
)

type WSHandler struct {
	hub *realtime.Hub
}

func NewWSHandler(hub *realtime.Hub) *WSHandler { return &WSHandler{hub: hub} }

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	// Readers sit on school wifi and drivers on carrier NAT; origin checks
	// buy nothing here since no browser credentials ride on this socket.
	CheckOrigin: func(*http.Request) bool { return true },
}

// Serve upgrades the request and hands the connection to the hub. The hub
// owns the connection from here on.
func (h *WSHandler) Serve(c echo.Context) error {
	conn, err := upgrader.Upgrade(c.Response(), c.Request(), nil)
	if err != nil {
		return err
	}
	h.hub.ServeConn(conn)
	return nil
}
