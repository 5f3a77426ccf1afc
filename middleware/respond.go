package middleware

import "github.com/gin-gonic/gin"

func abortWithMessage(c *gin.Context, status int, message string) {
	s := "error"
	if status < 500 {
		s = "fail"
	}
	c.AbortWithStatusJSON(status, gin.H{"status": s, "message": message})
}
