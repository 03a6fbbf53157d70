package api

import "github.com/gin-gonic/gin"

// Register mounts the operator API under group.
func Register(group *gin.RouterGroup, conv *ConversationHandler, biz *BusinessHandler) {
	group.POST("/turn", conv.Turn)
	group.GET("/state/:identity", conv.GetState)
	group.GET("/runs", conv.GetRuns)

	campaigns := group.Group("/campaigns")
	{
		campaigns.POST("", conv.CreateCampaign)
		campaigns.PATCH("/draft", conv.UpdateDraft)
		campaigns.POST("/launch", conv.LaunchDraft)
	}

	group.POST("/posts", conv.PublishPost)

	businessGroup := group.Group("/business")
	{
		businessGroup.POST("/link", biz.Link)
		businessGroup.POST("/sync", biz.Sync)
	}
}
