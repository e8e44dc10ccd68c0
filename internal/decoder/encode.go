package decoder

import (
	"encoding/json"

	"github.com/tidwall/sjson"

	"rewardwatch/pkg/model"
)

// wireRecord 接口原始字段形态，成熟标记使用 "是"/"否"
type wireRecord struct {
	AppID                         string `json:"appId"`
	AppName                       string `json:"appName"`
	AppType                       string `json:"appType"`
	FirstOnShelfDate              string `json:"firstOnShelfDate"`
	IsMatureApp                   string `json:"isMatureApp"`
	Status                        string `json:"status"`
	FirstMonthValidActiveUserNum  string `json:"firstMonthValidActiveUserNum"`
	SecondMonthValidActiveUserNum string `json:"secondMonthValidActiveUserNum"`
	ThirdMonthValidActiveUserNum  string `json:"thirdMonthValidActiveUserNum"`
}

// EncodeEnvelope 按接口的嵌套信封格式编码记录，是 Decode 的逆操作
func EncodeEnvelope(records []model.AppRecord, cutOffTime string) ([]byte, error) {
	wire := make([]wireRecord, 0, len(records))
	for _, r := range records {
		mature := "否"
		if r.IsMatureApp {
			mature = "是"
		}
		wire = append(wire, wireRecord{
			AppID:                         r.AppID,
			AppName:                       r.AppName,
			AppType:                       r.AppType,
			FirstOnShelfDate:              r.FirstOnShelfDate.String(),
			IsMatureApp:                   mature,
			Status:                        r.Status,
			FirstMonthValidActiveUserNum:  r.FirstMonthValidActiveUserNum,
			SecondMonthValidActiveUserNum: r.SecondMonthValidActiveUserNum,
			ThirdMonthValidActiveUserNum:  r.ThirdMonthValidActiveUserNum,
		})
	}
	list, err := json.Marshal(wire)
	if err != nil {
		return nil, err
	}

	item, err := sjson.SetRawBytes([]byte(`{}`), "list", list)
	if err != nil {
		return nil, err
	}
	if cutOffTime != "" {
		if item, err = sjson.SetBytes(item, "cutOffTime", cutOffTime); err != nil {
			return nil, err
		}
	}
	resultString, err := sjson.SetRawBytes([]byte(`[]`), "-1", item)
	if err != nil {
		return nil, err
	}

	resJSON, err := sjson.SetBytes([]byte(`{"result":{}}`), "result.resultString", string(resultString))
	if err != nil {
		return nil, err
	}
	return sjson.SetBytes([]byte(`{}`), "resJson", string(resJSON))
}
