package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"

	"rewardwatch/internal/metrics"
	"rewardwatch/pkg/api"
)

var (
	watchTarget  string
	watchApps    bool
	watchCapture bool
)

// watchCmd 附加页面并持续输出汇总
var watchCmd = &cobra.Command{
	Use:   "watch",
	Short: "附加浏览器页面并在每次更新时输出汇总",
	Long: `连接 DevTools 端点，附加目标页面，观察页面发出的激励查询请求。
每次数据表更新时向标准输出打印一行 JSON。配置了 metrics.address 时同时暴露 /metrics。`,
	RunE: runWatch,
}

func init() {
	watchCmd.Flags().StringVarP(&watchTarget, "target", "t", "", "目标ID或URL片段，默认取配置或第一个页面")
	watchCmd.Flags().BoolVar(&watchApps, "apps", false, "输出中包含全部应用记录")
	watchCmd.Flags().BoolVar(&watchCapture, "captures", false, "每次更新后打印最近的捕获记录")
}

func runWatch(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := metrics.Register(prometheus.DefaultRegisterer); err != nil {
		return fmt.Errorf("注册指标: %w", err)
	}
	if cfg.Metrics.Address != "" {
		srv := serveMetrics(cfg.Metrics.Address, stop)
		defer func() {
			sctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = srv.Shutdown(sctx)
		}()
	}

	svc, err := api.NewService(cfg, log)
	if err != nil {
		return err
	}
	defer svc.Close()

	if err := svc.Start(ctx); err != nil {
		return err
	}

	out := json.NewEncoder(cmd.OutOrStdout())
	svc.OnUpdate(func(s api.Snapshot) {
		if !watchApps {
			s.Apps = nil
		}
		if err := out.Encode(s); err != nil {
			log.Err(err, "输出汇总失败")
		}
		if watchCapture {
			printCaptures(ctx, cmd, svc)
		}
	})

	info, err := svc.AttachTarget(ctx, watchTarget)
	if err != nil {
		return err
	}
	log.Info("等待激励查询请求", "targetID", string(info.ID), "url", info.URL)

	<-ctx.Done()
	return nil
}

func printCaptures(ctx context.Context, cmd *cobra.Command, svc api.Service) {
	calls, err := svc.RecentCaptures(ctx, 0)
	if err != nil {
		log.Err(err, "读取捕获日志失败")
		return
	}
	w := cmd.ErrOrStderr()
	for _, c := range calls {
		status := fmt.Sprint(int(c.Status))
		if c.Status.Failed() {
			status = "error"
		}
		fmt.Fprintf(w, "%s  %-5s %-6s %s %s\n",
			time.UnixMilli(c.TimestampMs).Format(time.TimeOnly), c.Transport, status, c.Method, c.URL)
	}
}

func serveMetrics(addr string, stop context.CancelFunc) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	srv := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Err(err, "metrics 服务退出", "address", addr)
			stop()
		}
	}()
	log.Info("metrics 已启动", "address", addr)
	return srv
}
