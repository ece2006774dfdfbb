// Package statemachine 声明式有限状态机引擎。
//
// 以转换名到 Definition 的映射描述状态机，构造时编译为 from -> to 查找表
// 并为每个转换名合成一个转换函数：
//
//	m, err := statemachine.New(statemachine.Config{
//		Initial: "idle",
//		Transitions: statemachine.Transitions{
//			"start": {From: "idle", To: statemachine.To("running")},
//		},
//	})
//	_ = m.Fire(ctx, "start") // current=running prev=idle status=SUCCEEDED
//	_ = m.Fire(ctx, "start") // 源状态不匹配，静默忽略
//
// 同步转换依次执行 Before、Transition、提交记录、After。
// 异步转换由 Async 返回 Pending，先写入 STARTED 记录（可经 TransitionState 进入中间状态），
// 完成时再解析目标并提交；Cancel 会中止 Pending，完成后记录为 FAILED 且状态不变。
//
// From 可为通配符 "*"。To 可为扇出映射，调用时由 OnResolve 返回的键选择目标，
// 编译时检测扇出分支对同一 (from, to) 的冲突。
//
// 异步完成阶段的错误没有调用方，经 WithErrorHandler 与观察者事件上报。
package statemachine
