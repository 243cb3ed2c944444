package auth

import (
	"net/http"
	"strings"

	"ledger-cms/redis"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
)

func AuthMiddleWare() gin.HandlerFunc {
	return func(ctx *gin.Context) {
		authHeader := ctx.GetHeader("Authorization")
		if authHeader == "" {
			ctx.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Authorization is not found!"})
			return
		}

		// verify token
		token := strings.TrimPrefix(authHeader, "Bearer ")
		jwtToken, err := VerifyJWT(token)
		if err != nil {
			ctx.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Unauthorized"})
			return
		}

		// check on redis
		exists, err := redis.RedisClient.Exists(redis.Ctx, token).Result()
		if err != nil || exists == 0 {
			ctx.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Token expired or not found"})
			return
		}

		if claims, ok := jwtToken.Claims.(jwt.MapClaims); ok {
			if id, ok := claims["user_id"].(float64); ok {
				ctx.Set("user_id", uint64(id))
			}
			if name, ok := claims["username"].(string); ok {
				ctx.Set("username", name)
			}
		}
		ctx.Set("jwt_token", token)
		ctx.Next()
	}
}
