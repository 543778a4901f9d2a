package server

import (
	"auctioneer/services/auction/handler"
	"auctioneer/utils"

	"github.com/gin-gonic/gin"
)

// SetupRouter configures the read-only status routes
func SetupRouter(service handler.AuctionServiceInterface) *gin.Engine {
	router := gin.New() // New router without default middleware for full control over middleware and logging

	router.Use(gin.Recovery())          // recover from panics
	router.Use(RequestLoggerMiddleware) // custom request logging

	auctionHandler := handler.NewAuctionHandler(service)

	auction := router.Group("/auction")
	{
		auction.GET("", auctionHandler.GetAuctionHandler)
		auction.GET("/bids", auctionHandler.GetBidsHandler)
		auction.GET("/result", auctionHandler.GetResultHandler)
	}

	router.GET("/participants", auctionHandler.GetParticipantsHandler)
	router.NoRoute(utils.NoRoute)

	return router
}
