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

package apps

import (
	"context"
	"fmt"
	"path"
	"time"

	"github.com/spf13/cobra"

	"github.com/basaltos/basalt/cmd/apps/apis"
	v1 "github.com/basaltos/basalt/cmd/apps/apis/v1"
	configapp "github.com/basaltos/basalt/cmd/apps/config"
	"github.com/basaltos/basalt/config"
	"github.com/basaltos/basalt/pkg/dentry"
	"github.com/basaltos/basalt/pkg/events"
	"github.com/basaltos/basalt/pkg/inode"
	"github.com/basaltos/basalt/pkg/memfs"
	"github.com/basaltos/basalt/pkg/soak"
	"github.com/basaltos/basalt/pkg/storage"
	"github.com/basaltos/basalt/pkg/vfs"
	"github.com/basaltos/basalt/pkg/vm"
	"github.com/basaltos/basalt/utils"
	"github.com/basaltos/basalt/utils/logger"
)

func init() {
	RootCmd.AddCommand(daemonCmd)
	RootCmd.AddCommand(versionCmd)
	RootCmd.AddCommand(soakCmd)
	RootCmd.AddCommand(configapp.RunCmd)
}

var RootCmd = &cobra.Command{
	Use:   "basalt",
	Short: "Basalt cache engine server",
	Long:  `Name cache and demand-paging core serving an in-memory filesystem.`,
	Run: func(cmd *cobra.Command, args []string) {
		_ = cmd.Help()
	},
}

func init() {
	daemonCmd.Flags().StringVar(&config.FilePath, "config", path.Join(config.LocalUserPath(), config.DefaultConfigBase), "basalt config file")
	soakCmd.Flags().StringVar(&config.FilePath, "config", path.Join(config.LocalUserPath(), config.DefaultConfigBase), "basalt config file")
	soakCmd.Flags().DurationVar(&soakDuration, "duration", time.Second*30, "how long to keep the churn running")
	soakCmd.Flags().IntVar(&soakWorkers, "workers", 4, "concurrent workers")
	soakCmd.Flags().IntVar(&soakDirs, "dirs", 4, "group fanout")
	soakCmd.Flags().IntVar(&soakFiles, "files", 32, "distinct file paths")
}

var daemonCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start server service",
	Run: func(cmd *cobra.Command, args []string) {
		cfg := mustLoadConfig()

		depends, err := setupDepends(cfg)
		if err != nil {
			panic(err)
		}

		stop := utils.HandleTerminalSignal()
		run(depends, cfg, stop)
	},
}

func run(depends *v1.Depends, cfg config.Config, stopCh chan struct{}) {
	log := logger.NewLogger("basalt")
	log.Infow("starting", "version", config.VersionInfo().Version())

	shutdown := make(chan struct{})
	go func() {
		<-stopCh
		log.Info("shutdown after 1s")
		time.Sleep(time.Second)
		close(shutdown)
	}()

	if cfg.Api.Enable {
		s, err := apis.NewApiServer(depends, cfg)
		if err != nil {
			log.Panicw("init http server failed", "err", err.Error())
		}
		go s.Run(stopCh)
	}

	log.Info("started")
	<-shutdown
	depends.Pages.Close()
	log.Info("stopped")
}

var (
	soakDuration time.Duration
	soakWorkers  int
	soakDirs     int
	soakFiles    int
)

var soakCmd = &cobra.Command{
	Use:   "soak",
	Short: "Churn the caches and verify content integrity",
	Run: func(cmd *cobra.Command, args []string) {
		cfg := mustLoadConfig()

		depends, err := setupDepends(cfg)
		if err != nil {
			panic(err)
		}
		defer depends.Pages.Close()

		runner := soak.NewRunner(depends.VFS, depends.Backend, depends.Names, depends.Pages, soak.Config{
			Workers:  soakWorkers,
			Dirs:     soakDirs,
			Files:    soakFiles,
			Duration: soakDuration,
		})
		report, err := runner.Run(context.Background())
		if err != nil {
			logger.NewLogger("soak").Fatalw("soak run failed", "err", err.Error())
		}

		fmt.Printf("Ops: %d\n", report.Ops)
		fmt.Printf("Writes: %d\n", report.Writes)
		fmt.Printf("Verifies: %d\n", report.Verifies)
		fmt.Printf("Removes: %d\n", report.Removes)
		fmt.Printf("Misses: %d\n", report.Misses)
		fmt.Printf("NamesReclaimed: %d\n", report.NamesReclaimed)
		fmt.Printf("PagesReclaimed: %d\n", report.PagesReclaimed)
		fmt.Printf("Failures: %d\n", report.Failures)
		if report.Failures > 0 {
			logger.NewLogger("soak").Fatalw("soak detected failures", "failures", report.Failures)
		}
	},
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "View version information",
	Run: func(cmd *cobra.Command, args []string) {
		vInfo := config.VersionInfo()
		fmt.Printf("Version: %s\n", vInfo.Version())
		fmt.Printf("GitCommit: %s\n", vInfo.Git)
	},
}

func mustLoadConfig() config.Config {
	loader := config.NewConfigLoader()
	cfg, err := loader.GetConfig()
	if err != nil {
		panic(err)
	}
	if err = config.Verify(cfg); err != nil {
		panic(err)
	}

	if cfg.Debug {
		logger.SetDebug(cfg.Debug)
	}
	return cfg
}

func setupDepends(cfg config.Config) (*v1.Depends, error) {
	if len(cfg.Storages) == 0 {
		return nil, fmt.Errorf("storage must config")
	}
	storeCfg := cfg.Storages[0]
	store, err := storage.NewStorage(storeCfg.ID, storeCfg.Type, storeCfg)
	if err != nil {
		return nil, err
	}

	pages := vm.NewCache(store, cfg.PageCache)

	registry := inode.NewRegistry(inode.WithReleaseHandler(func(node *inode.Inode) {
		pages.Invalidate(node.ID)
		_ = store.Delete(context.TODO(), node.ID)
	}))
	backend := memfs.New(registry, store)
	backend.SetInvalidator(pages.Invalidate)

	names := dentry.NewCache(cfg.NameCache.Capacity)
	mounted, err := vfs.Mount(context.Background(), backend, names)
	if err != nil {
		return nil, err
	}

	return &v1.Depends{
		VFS:     mounted,
		Backend: backend,
		Names:   names,
		Pages:   pages,
		Events:  events.NewRecorder(256),
	}, nil
}
