package main

import (
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"rewardwatch/internal/aggregator"
	"rewardwatch/internal/decoder"
	"rewardwatch/internal/enricher"
	"rewardwatch/pkg/model"
)

var today string

// decodeCmd 离线解码一个已保存的响应体
var decodeCmd = &cobra.Command{
	Use:   "decode <file>",
	Short: "离线解码已保存的响应并输出计算结果",
	Args:  cobra.ExactArgs(1),
	RunE:  runDecode,
}

// sampleCmd 输出一份示例响应
var sampleCmd = &cobra.Command{
	Use:   "sample",
	Short: "输出一份示例响应，可配合 decode 使用",
	RunE:  runSample,
}

func init() {
	decodeCmd.Flags().StringVar(&today, "today", "", "计算所用日期 (YYYY-MM-DD)，默认今天")
	sampleCmd.Flags().StringVar(&today, "today", "", "示例数据参照的日期 (YYYY-MM-DD)，默认今天")
}

type decodeOutput struct {
	Mismatch   decoder.Layer          `json:"mismatch,omitempty"`
	CutOffTime string                 `json:"cutOffTime,omitempty"`
	Apps       []model.EnrichedRecord `json:"apps"`
	Summary    model.Summary          `json:"summary"`
}

func resolveToday() (time.Time, error) {
	loc, err := cfg.Location()
	if err != nil {
		return time.Time{}, err
	}
	if today == "" {
		return time.Now().In(loc), nil
	}
	d, ok := model.ParseDate(today)
	if !ok {
		return time.Time{}, fmt.Errorf("无法解析日期: %q", today)
	}
	return d.Time(), nil
}

func runDecode(cmd *cobra.Command, args []string) error {
	body, err := os.ReadFile(args[0])
	if err != nil {
		return fmt.Errorf("读取响应文件: %w", err)
	}
	now, err := resolveToday()
	if err != nil {
		return err
	}
	loc, err := cfg.Location()
	if err != nil {
		return err
	}

	res := decoder.DecodeIn(body, loc)
	apps := make([]model.EnrichedRecord, 0, len(res.Records))
	seen := make(map[string]int, len(res.Records))
	for _, rec := range res.Records {
		e := enricher.Enrich(rec, now)
		if i, ok := seen[rec.AppID]; ok {
			apps[i] = e
			continue
		}
		seen[rec.AppID] = len(apps)
		apps = append(apps, e)
	}

	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(decodeOutput{
		Mismatch:   res.Mismatch,
		CutOffTime: res.CutOffTime,
		Apps:       apps,
		Summary:    aggregator.Aggregate(apps),
	})
}

func runSample(cmd *cobra.Command, args []string) error {
	now, err := resolveToday()
	if err != nil {
		return err
	}
	day := model.DateOf(now)
	recs := []model.AppRecord{
		{
			AppID: "1000000001", AppName: "示例应用A", AppType: "app", Status: "上架",
			FirstOnShelfDate:             day.AddDays(-10),
			FirstMonthValidActiveUserNum: "68",
		},
		{
			AppID: "1000000002", AppName: "示例应用B", AppType: "app", Status: "上架",
			FirstOnShelfDate:              day.AddDays(-45),
			FirstMonthValidActiveUserNum:  "120",
			SecondMonthValidActiveUserNum: "150",
		},
		{
			AppID: "1000000003", AppName: "示例元服务C", AppType: "atomic", Status: "上架",
			FirstOnShelfDate:              day.AddDays(-100),
			IsMatureApp:                   true,
			FirstMonthValidActiveUserNum:  "30",
			SecondMonthValidActiveUserNum: "80",
			ThirdMonthValidActiveUserNum:  "240",
		},
	}
	body, err := decoder.EncodeEnvelope(recs, day.AddDays(-1).String())
	if err != nil {
		return err
	}
	_, err = fmt.Fprintln(cmd.OutOrStdout(), string(body))
	return err
}
