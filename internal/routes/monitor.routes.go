package routes

import (
	"github.com/gin-gonic/gin"

	"statwatch/internal/controllers"
)

// RegisterMonitorRoutes mounts the monitor API on an authenticated group
func RegisterMonitorRoutes(api *gin.RouterGroup, mc *controllers.MonitorController) {
	monitor := api.Group("/monitor")
	{
		monitor.GET("/sessions", mc.ListSessions)
		monitor.POST("/sessions/:host", mc.ActivateSession)
		monitor.DELETE("/sessions/:host", mc.DeactivateSession)
		monitor.PUT("/sessions/:host/kind", mc.SwitchKind)
		monitor.PUT("/sessions/:host/filter", mc.SwitchFilter)

		monitor.GET("/snapshots/:host", mc.GetSnapshot)
		monitor.DELETE("/snapshots/:host", mc.ClearSnapshot)
		monitor.DELETE("/snapshots", mc.ClearAllSnapshots)

		monitor.POST("/rates/network", controllers.DeriveNetworkRates)
		monitor.POST("/rates/disk-io", controllers.DeriveDiskIORates)
	}
}
