/*
 Copyright 2026 Basalt Authors.

 Licensed under the Apache License, Version 2.0 (the "License");
 you may not use this file except in compliance with the License.
 You may obtain a copy of the License at

    http://www.apache.org/licenses/LICENSE-2.0

 Unless required by applicable law or agreed to in writing, software
 distributed under the License is distributed on an "AS IS" BASIS,
 WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 See the License for the specific language governing permissions and
 limitations under the License.
*/

package v1

import (
	"github.com/gin-gonic/gin"
)

func RegisterRoutes(engine *gin.Engine, s *ServicesV1) {
	v1 := engine.Group("/api/v1")
	{
		// Entries
		entries := v1.Group("/entries")
		{
			entries.GET("/*path", s.GetEntry)
			entries.POST("", s.CreateEntry)
			entries.DELETE("/*path", s.DeleteEntry)
		}

		// Files
		files := v1.Group("/files")
		{
			files.GET("/*path", s.ReadFile)
			files.POST("/*path", s.WriteFile)
		}

		// Caches
		v1.GET("/namecache", s.DumpNameCache)
		v1.GET("/pagecache", s.PageCacheStats)
		v1.GET("/events", s.RecentEvents)
		v1.POST("/reclaim", s.Reclaim)
	}
}
