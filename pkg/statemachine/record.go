package statemachine

// Record 状态机运行记录，只能由所属状态机修改
type Record struct {
	Current    State    `json:"current" yaml:"current"`
	Prev       State    `json:"prev" yaml:"prev"`
	Transition string   `json:"transition" yaml:"transition"`
	Type       ExecType `json:"type" yaml:"type"`
	Status     Status   `json:"status" yaml:"status"`
}

// InFlight 是否有异步转换进行中
func (r Record) InFlight() bool {
	return r.Status == StatusStarted && r.Type == TypeAsync
}

func newRecord(initial State) Record {
	return Record{
		Current: initial,
		Status:  StatusSucceeded,
	}
}

// changedFields 返回两条记录间发生变化的字段名
func changedFields(old, cur Record) []string {
	var fields []string
	if old.Current != cur.Current {
		fields = append(fields, "current")
	}
	if old.Prev != cur.Prev {
		fields = append(fields, "prev")
	}
	if old.Transition != cur.Transition {
		fields = append(fields, "transition")
	}
	if old.Type != cur.Type {
		fields = append(fields, "type")
	}
	if old.Status != cur.Status {
		fields = append(fields, "status")
	}
	return fields
}
