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
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"time"

	"github.com/gin-gonic/gin"
	. "github.com/onsi/ginkgo"
	. "github.com/onsi/gomega"

	"github.com/basaltos/basalt/config"
	"github.com/basaltos/basalt/pkg/dentry"
	"github.com/basaltos/basalt/pkg/events"
	"github.com/basaltos/basalt/pkg/inode"
	"github.com/basaltos/basalt/pkg/memfs"
	"github.com/basaltos/basalt/pkg/storage"
	"github.com/basaltos/basalt/pkg/types"
	"github.com/basaltos/basalt/pkg/vfs"
	"github.com/basaltos/basalt/pkg/vm"
)

const testPageSize = 64

func newTestStack() (*gin.Engine, func()) {
	store, err := storage.NewStorage(storage.MemoryStorage, storage.MemoryStorage, config.Storage{})
	Expect(err).Should(BeNil())

	pages := vm.NewCache(store, config.PageCache{
		PageSize:        testPageSize,
		FrameLimit:      256,
		PoolSize:        128,
		ReclaimInterval: 300,
	})

	registry := inode.NewRegistry(inode.WithReleaseHandler(func(node *inode.Inode) {
		pages.Invalidate(node.ID)
		_ = store.Delete(context.TODO(), node.ID)
	}))
	backend := memfs.New(registry, store)
	backend.SetInvalidator(pages.Invalidate)

	names := dentry.NewCache(64)
	v, err := vfs.Mount(context.TODO(), backend, names)
	Expect(err).Should(BeNil())

	recorder := events.NewRecorder(128)

	gin.SetMode(gin.TestMode)
	router := gin.New()
	services := NewServicesV1(&Depends{VFS: v, Backend: backend, Names: names, Pages: pages, Events: recorder})
	RegisterRoutes(router, services)
	return router, func() {
		recorder.Close()
		pages.Close()
	}
}

func do(router *gin.Engine, method, target string, body []byte) *httptest.ResponseRecorder {
	var (
		req *http.Request
		err error
	)
	if body == nil {
		req, err = http.NewRequest(method, target, nil)
	} else {
		req, err = http.NewRequest(method, target, bytes.NewReader(body))
	}
	Expect(err).Should(BeNil())

	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

func postJSON(router *gin.Engine, target string, payload interface{}) *httptest.ResponseRecorder {
	raw, err := json.Marshal(payload)
	Expect(err).Should(BeNil())

	req, err := http.NewRequest(http.MethodPost, target, bytes.NewReader(raw))
	Expect(err).Should(BeNil())
	req.Header.Set("Content-Type", "application/json")

	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

func decodeEntry(w *httptest.ResponseRecorder) EntryDetail {
	var envelope struct {
		Data struct {
			Entry EntryDetail `json:"entry"`
		} `json:"data"`
	}
	Expect(json.Unmarshal(w.Body.Bytes(), &envelope)).Should(BeNil())
	return envelope.Data.Entry
}

func decodeErrorCode(w *httptest.ResponseRecorder) string {
	var envelope struct {
		Error struct {
			Code string `json:"code"`
		} `json:"error"`
	}
	Expect(json.Unmarshal(w.Body.Bytes(), &envelope)).Should(BeNil())
	return envelope.Error.Code
}

var _ = Describe("TestEntriesAPI", func() {
	var (
		router   *gin.Engine
		teardown func()
	)

	BeforeEach(func() {
		router, teardown = newTestStack()
	})
	AfterEach(func() {
		teardown()
	})

	Context("create and inspect entries", func() {
		It("should create a group entry", func() {
			w := postJSON(router, "/api/v1/entries", CreateEntryRequest{Path: "/docs", Kind: "group"})
			Expect(w.Code).Should(Equal(http.StatusCreated))

			entry := decodeEntry(w)
			Expect(entry.Path).Should(Equal("/docs"))
			Expect(entry.IsGroup).Should(BeTrue())
		})

		It("should default to a raw entry when kind is omitted", func() {
			w := postJSON(router, "/api/v1/entries", CreateEntryRequest{Path: "/plain"})
			Expect(w.Code).Should(Equal(http.StatusCreated))
			Expect(decodeEntry(w).Kind).Should(Equal(types.RawKind))
		})

		It("should list group children in the detail", func() {
			Expect(postJSON(router, "/api/v1/entries", CreateEntryRequest{Path: "/docs", Kind: "group"}).Code).Should(Equal(http.StatusCreated))
			Expect(postJSON(router, "/api/v1/entries", CreateEntryRequest{Path: "/docs/b"}).Code).Should(Equal(http.StatusCreated))
			Expect(postJSON(router, "/api/v1/entries", CreateEntryRequest{Path: "/docs/a"}).Code).Should(Equal(http.StatusCreated))

			w := do(router, http.MethodGet, "/api/v1/entries/docs", nil)
			Expect(w.Code).Should(Equal(http.StatusOK))

			entry := decodeEntry(w)
			Expect(entry.IsGroup).Should(BeTrue())
			Expect(entry.Children).Should(Equal([]string{"a", "b"}))
		})

		It("should resolve the root group", func() {
			w := do(router, http.MethodGet, "/api/v1/entries/", nil)
			Expect(w.Code).Should(Equal(http.StatusOK))

			entry := decodeEntry(w)
			Expect(entry.Path).Should(Equal("/"))
			Expect(entry.IsGroup).Should(BeTrue())
		})

		It("should report unknown paths as not found", func() {
			w := do(router, http.MethodGet, "/api/v1/entries/ghost", nil)
			Expect(w.Code).Should(Equal(http.StatusNotFound))
			Expect(decodeErrorCode(w)).Should(Equal("NotFound"))
		})

		It("should refuse an unknown kind", func() {
			w := postJSON(router, "/api/v1/entries", CreateEntryRequest{Path: "/x", Kind: "pipe"})
			Expect(w.Code).Should(Equal(http.StatusBadRequest))
			Expect(decodeErrorCode(w)).Should(Equal("ArgsError"))
		})

		It("should refuse a duplicate create", func() {
			Expect(postJSON(router, "/api/v1/entries", CreateEntryRequest{Path: "/once"}).Code).Should(Equal(http.StatusCreated))

			w := postJSON(router, "/api/v1/entries", CreateEntryRequest{Path: "/once"})
			Expect(w.Code).Should(Equal(http.StatusBadRequest))
			Expect(decodeErrorCode(w)).Should(Equal("EntryExisted"))
		})
	})

	Context("delete entries", func() {
		It("should delete an entry and forget its name", func() {
			Expect(postJSON(router, "/api/v1/entries", CreateEntryRequest{Path: "/tmp"}).Code).Should(Equal(http.StatusCreated))

			Expect(do(router, http.MethodDelete, "/api/v1/entries/tmp", nil).Code).Should(Equal(http.StatusOK))
			Expect(do(router, http.MethodGet, "/api/v1/entries/tmp", nil).Code).Should(Equal(http.StatusNotFound))
		})

		It("should refuse deleting a non-empty group", func() {
			Expect(postJSON(router, "/api/v1/entries", CreateEntryRequest{Path: "/docs", Kind: "group"}).Code).Should(Equal(http.StatusCreated))
			Expect(postJSON(router, "/api/v1/entries", CreateEntryRequest{Path: "/docs/a"}).Code).Should(Equal(http.StatusCreated))

			w := do(router, http.MethodDelete, "/api/v1/entries/docs", nil)
			Expect(w.Code).Should(Equal(http.StatusBadRequest))
			Expect(decodeErrorCode(w)).Should(Equal("NotEmpty"))
		})

		It("should refuse deleting the root", func() {
			w := do(router, http.MethodDelete, "/api/v1/entries/", nil)
			Expect(w.Code).Should(Equal(http.StatusBadRequest))
			Expect(decodeErrorCode(w)).Should(Equal("ArgsError"))
		})
	})
})

var _ = Describe("TestFilesAPI", func() {
	var (
		router   *gin.Engine
		teardown func()
	)

	BeforeEach(func() {
		router, teardown = newTestStack()
	})
	AfterEach(func() {
		teardown()
	})

	Context("write and read content", func() {
		It("should create the file on first write", func() {
			body := bytes.Repeat([]byte("basalt"), 10)
			w := do(router, http.MethodPost, "/api/v1/files/blob", body)
			Expect(w.Code).Should(Equal(http.StatusOK))

			detail := do(router, http.MethodGet, "/api/v1/entries/blob", nil)
			Expect(detail.Code).Should(Equal(http.StatusOK))

			entry := decodeEntry(detail)
			Expect(entry.Kind).Should(Equal(types.RawKind))
			Expect(entry.Size).Should(Equal(int64(len(body))))
		})

		It("should read back through the page cache", func() {
			body := make([]byte, testPageSize*2+22)
			for i := range body {
				body[i] = byte('a' + i%26)
			}
			Expect(do(router, http.MethodPost, "/api/v1/files/blob", body).Code).Should(Equal(http.StatusOK))

			w := do(router, http.MethodGet, "/api/v1/files/blob", nil)
			Expect(w.Code).Should(Equal(http.StatusOK))
			Expect(w.Body.Bytes()).Should(Equal(body))
		})

		It("should serve fresh content after an overwrite", func() {
			first := bytes.Repeat([]byte{0x11}, testPageSize*2)
			Expect(do(router, http.MethodPost, "/api/v1/files/blob", first).Code).Should(Equal(http.StatusOK))
			Expect(do(router, http.MethodGet, "/api/v1/files/blob", nil).Body.Bytes()).Should(Equal(first))

			second := bytes.Repeat([]byte{0x22}, testPageSize)
			Expect(do(router, http.MethodPost, "/api/v1/files/blob", second).Code).Should(Equal(http.StatusOK))

			w := do(router, http.MethodGet, "/api/v1/files/blob", nil)
			Expect(w.Code).Should(Equal(http.StatusOK))
			Expect(w.Body.Bytes()).Should(Equal(second))
		})

		It("should return an empty body for an empty file", func() {
			Expect(postJSON(router, "/api/v1/entries", CreateEntryRequest{Path: "/empty"}).Code).Should(Equal(http.StatusCreated))

			w := do(router, http.MethodGet, "/api/v1/files/empty", nil)
			Expect(w.Code).Should(Equal(http.StatusOK))
			Expect(w.Body.Len()).Should(Equal(0))
		})

		It("should refuse reading a group", func() {
			Expect(postJSON(router, "/api/v1/entries", CreateEntryRequest{Path: "/docs", Kind: "group"}).Code).Should(Equal(http.StatusCreated))

			w := do(router, http.MethodGet, "/api/v1/files/docs", nil)
			Expect(w.Code).Should(Equal(http.StatusBadRequest))
			Expect(decodeErrorCode(w)).Should(Equal("IsGroup"))
		})

		It("should refuse writing group content", func() {
			Expect(postJSON(router, "/api/v1/entries", CreateEntryRequest{Path: "/docs", Kind: "group"}).Code).Should(Equal(http.StatusCreated))

			w := do(router, http.MethodPost, "/api/v1/files/docs", []byte("nope"))
			Expect(w.Code).Should(Equal(http.StatusBadRequest))
			Expect(decodeErrorCode(w)).Should(Equal("IsGroup"))
		})
	})
})

var _ = Describe("TestCacheAPI", func() {
	var (
		router   *gin.Engine
		teardown func()
	)

	BeforeEach(func() {
		router, teardown = newTestStack()
	})
	AfterEach(func() {
		teardown()
	})

	Context("name cache introspection", func() {
		It("should expose records for resolved names", func() {
			Expect(postJSON(router, "/api/v1/entries", CreateEntryRequest{Path: "/docs", Kind: "group"}).Code).Should(Equal(http.StatusCreated))
			Expect(postJSON(router, "/api/v1/entries", CreateEntryRequest{Path: "/docs/a"}).Code).Should(Equal(http.StatusCreated))

			w := do(router, http.MethodGet, "/api/v1/namecache", nil)
			Expect(w.Code).Should(Equal(http.StatusOK))

			var envelope struct {
				Data NameCacheDump `json:"data"`
			}
			Expect(json.Unmarshal(w.Body.Bytes(), &envelope)).Should(BeNil())
			Expect(envelope.Data.Capacity).Should(Equal(64))
			Expect(envelope.Data.InUse).Should(Equal(3))

			paths := map[string]bool{}
			rootSeen := false
			for _, rec := range envelope.Data.Records {
				paths[rec.Path] = true
				if rec.Root {
					rootSeen = true
				}
			}
			Expect(rootSeen).Should(BeTrue())
			Expect(paths["/docs/a"]).Should(BeTrue())
		})

		It("should keep a negative record after a miss", func() {
			Expect(do(router, http.MethodGet, "/api/v1/entries/ghost", nil).Code).Should(Equal(http.StatusNotFound))

			w := do(router, http.MethodGet, "/api/v1/namecache", nil)
			var envelope struct {
				Data NameCacheDump `json:"data"`
			}
			Expect(json.Unmarshal(w.Body.Bytes(), &envelope)).Should(BeNil())

			found := false
			for _, rec := range envelope.Data.Records {
				if rec.Name == "ghost" {
					found = rec.Negative
				}
			}
			Expect(found).Should(BeTrue())
		})
	})

	Context("event tail", func() {
		It("should record name cache actions", func() {
			Expect(postJSON(router, "/api/v1/entries", CreateEntryRequest{Path: "/docs", Kind: "group"}).Code).Should(Equal(http.StatusCreated))
			time.Sleep(time.Millisecond * 100)

			w := do(router, http.MethodGet, "/api/v1/events", nil)
			Expect(w.Code).Should(Equal(http.StatusOK))

			var envelope struct {
				Data struct {
					Events []*types.Event `json:"events"`
				} `json:"data"`
			}
			Expect(json.Unmarshal(w.Body.Bytes(), &envelope)).Should(BeNil())

			found := false
			for _, evt := range envelope.Data.Events {
				if evt.Source == "namecache" && evt.Data.Name == "docs" {
					found = true
				}
			}
			Expect(found).Should(BeTrue())
		})
	})

	Context("page cache introspection and reclaim", func() {
		It("should account frames and shed them on reclaim", func() {
			body := make([]byte, testPageSize*2+22)
			Expect(do(router, http.MethodPost, "/api/v1/files/blob", body).Code).Should(Equal(http.StatusOK))
			Expect(do(router, http.MethodGet, "/api/v1/files/blob", nil).Code).Should(Equal(http.StatusOK))

			stats := do(router, http.MethodGet, "/api/v1/pagecache", nil)
			Expect(stats.Code).Should(Equal(http.StatusOK))

			var statsEnvelope struct {
				Data vm.Stats `json:"data"`
			}
			Expect(json.Unmarshal(stats.Body.Bytes(), &statsEnvelope)).Should(BeNil())
			Expect(statsEnvelope.Data.PageSize).Should(Equal(int64(testPageSize)))
			Expect(statsEnvelope.Data.FramesInUse).Should(Equal(int32(3)))
			Expect(statsEnvelope.Data.CanonicalPages).Should(Equal(3))

			reclaim := do(router, http.MethodPost, "/api/v1/reclaim", nil)
			Expect(reclaim.Code).Should(Equal(http.StatusOK))

			var reclaimEnvelope struct {
				Data ReclaimResult `json:"data"`
			}
			Expect(json.Unmarshal(reclaim.Body.Bytes(), &reclaimEnvelope)).Should(BeNil())
			Expect(reclaimEnvelope.Data.Names).Should(Equal(1))
			Expect(reclaimEnvelope.Data.Pages).Should(Equal(3))

			after := do(router, http.MethodGet, "/api/v1/pagecache", nil)
			Expect(json.Unmarshal(after.Body.Bytes(), &statsEnvelope)).Should(BeNil())
			Expect(statsEnvelope.Data.FramesInUse).Should(Equal(int32(0)))
		})
	})
})
