// Package decoder 逐层解开奖励查询接口的嵌套信封：
//
//	{resJson: "<json>"} -> {result: {resultString: "<json>"}} -> [{list: [...], cutOffTime}]
//
// 任一层形状不符都返回空结果，不向调用方返回错误。
package decoder

import (
	"strings"
	"time"

	"github.com/tidwall/gjson"

	"rewardwatch/pkg/model"
)

// Layer 解码失败的信封层
type Layer string

const (
	LayerNone     Layer = ""
	LayerEnvelope Layer = "envelope"
	LayerResult   Layer = "result"
	LayerList     Layer = "list"
)

// Result 解码结果
type Result struct {
	Records    []model.AppRecord
	CutOffTime string
	// Mismatch 形状不符的层，成功时为空
	Mismatch Layer
}

func empty(layer Layer) Result {
	return Result{Records: []model.AppRecord{}, Mismatch: layer}
}

// Decode 按 UTC 解码，见 DecodeIn
func Decode(body []byte) Result {
	return DecodeIn(body, time.UTC)
}

// DecodeIn 解码响应体，丢弃缺少 appId 的记录。时间戳形式的上架日期按 loc 取日历日期
func DecodeIn(body []byte, loc *time.Location) Result {
	resJSON, ok := unwrapEnvelope(body)
	if !ok {
		return empty(LayerEnvelope)
	}
	resultString, ok := unwrapResult(resJSON)
	if !ok {
		return empty(LayerResult)
	}
	first, ok := unwrapFirst(resultString)
	if !ok {
		return empty(LayerList)
	}

	items := first.Get("list").Array()
	records := make([]model.AppRecord, 0, len(items))
	for _, item := range items {
		if rec, ok := toRecord(item, loc); ok {
			records = append(records, rec)
		}
	}

	res := Result{Records: records}
	if c := first.Get("cutOffTime"); c.Type == gjson.String {
		res.CutOffTime = c.Str
	}
	return res
}

// unwrapEnvelope 第一层：外层对象上的 resJson 字符串
func unwrapEnvelope(body []byte) (string, bool) {
	if !gjson.ValidBytes(body) {
		return "", false
	}
	root := gjson.ParseBytes(body)
	if !root.IsObject() {
		return "", false
	}
	v := root.Get("resJson")
	if v.Type != gjson.String {
		return "", false
	}
	return v.Str, true
}

// unwrapResult 第二层：resJson 解析后的 result.resultString 字符串
func unwrapResult(resJSON string) (string, bool) {
	if !gjson.Valid(resJSON) {
		return "", false
	}
	v := gjson.Get(resJSON, "result.resultString")
	if v.Type != gjson.String {
		return "", false
	}
	return v.Str, true
}

// unwrapFirst 第三层：resultString 为非空数组，首元素带 list 数组
func unwrapFirst(resultString string) (gjson.Result, bool) {
	if !gjson.Valid(resultString) {
		return gjson.Result{}, false
	}
	arr := gjson.Parse(resultString)
	if !arr.IsArray() {
		return gjson.Result{}, false
	}
	elems := arr.Array()
	if len(elems) == 0 {
		return gjson.Result{}, false
	}
	first := elems[0]
	if !first.Get("list").IsArray() {
		return gjson.Result{}, false
	}
	return first, true
}

func toRecord(item gjson.Result, loc *time.Location) (model.AppRecord, bool) {
	if !item.IsObject() {
		return model.AppRecord{}, false
	}
	appID, ok := appIDOf(item.Get("appId"))
	if !ok {
		return model.AppRecord{}, false
	}
	shelf, _ := model.ParseDateIn(item.Get("firstOnShelfDate").String(), loc)
	return model.AppRecord{
		AppID:                         appID,
		AppName:                       item.Get("appName").String(),
		AppType:                       item.Get("appType").String(),
		FirstOnShelfDate:              shelf,
		IsMatureApp:                   truthy(item.Get("isMatureApp")),
		Status:                        item.Get("status").String(),
		FirstMonthValidActiveUserNum:  item.Get("firstMonthValidActiveUserNum").String(),
		SecondMonthValidActiveUserNum: item.Get("secondMonthValidActiveUserNum").String(),
		ThirdMonthValidActiveUserNum:  item.Get("thirdMonthValidActiveUserNum").String(),
	}, true
}

// appIDOf 只接受非空字符串或非零数字
func appIDOf(v gjson.Result) (string, bool) {
	switch v.Type {
	case gjson.String:
		return v.Str, v.Str != ""
	case gjson.Number:
		return v.String(), v.Num != 0
	default:
		return "", false
	}
}

// truthy 成熟应用标记：接口返回 "是"，也兼容布尔与数字
func truthy(v gjson.Result) bool {
	switch v.Type {
	case gjson.True:
		return true
	case gjson.Number:
		return v.Num != 0
	case gjson.String:
		switch strings.ToLower(strings.TrimSpace(v.Str)) {
		case "是", "true", "1", "yes", "y":
			return true
		}
	}
	return false
}
