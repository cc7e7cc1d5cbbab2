package router

import (
	"context"
	"crypto/subtle"

	"resume-extractor/internal/api/handler"

	"github.com/cloudwego/hertz/pkg/app"
	"github.com/cloudwego/hertz/pkg/app/server"
	"github.com/cloudwego/hertz/pkg/common/utils"
	"github.com/cloudwego/hertz/pkg/protocol/consts"
	"github.com/hertz-contrib/keyauth"
)

// RegisterRoutes 注册 API 路由。apiKeys 非空时 /api 下除健康检查外都需要 Bearer API Key
func RegisterRoutes(h *server.Hertz, resumeHandler *handler.ResumeHandler, apiKeys []string) {
	h.GET("/api/health", resumeHandler.HandleHealth)

	api := h.Group("/api")
	if len(apiKeys) > 0 {
		api.Use(APIKeyAuth(apiKeys))
	}

	// 非 POST 请求由处理器返回 405
	api.Any("/analyze-resumes", resumeHandler.HandleAnalyzeResumes)
	api.Any("/parse-pdf", resumeHandler.HandleParsePDF)

	api.POST("/export", resumeHandler.HandleExport)
	api.GET("/models", resumeHandler.HandleModels)
	api.GET("/history", resumeHandler.HandleHistory)
}

// APIKeyAuth 校验 Authorization: Bearer <key>
func APIKeyAuth(apiKeys []string) app.HandlerFunc {
	return keyauth.New(
		keyauth.WithKeyLookUp("header:"+consts.HeaderAuthorization, "Bearer"),
		keyauth.WithValidator(func(ctx context.Context, c *app.RequestContext, key string) (bool, error) {
			for _, k := range apiKeys {
				if subtle.ConstantTimeCompare([]byte(k), []byte(key)) == 1 {
					return true, nil
				}
			}
			return false, keyauth.ErrMissingOrMalformedAPIKey
		}),
		keyauth.WithErrorHandler(func(ctx context.Context, c *app.RequestContext, err error) {
			c.AbortWithStatusJSON(consts.StatusUnauthorized, utils.H{"error": "无效或缺失的API Key"})
		}),
	)
}
