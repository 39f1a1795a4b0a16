package handlers

import (
	"net/http"

	"tank-gateway/cache"

	"github.com/gin-gonic/gin"
)

type CacheHandler struct {
	authCache *cache.AuthCache
}

func NewCacheHandler(ac *cache.AuthCache) *CacheHandler {
	return &CacheHandler{authCache: ac}
}

// GET /api/v1/cache/stats
func (h *CacheHandler) GetCacheStats(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"auth_cache": h.authCache.Stats()})
}

// POST /api/v1/cache/sweep
func (h *CacheHandler) Sweep(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"evicted": h.authCache.Sweep()})
}
