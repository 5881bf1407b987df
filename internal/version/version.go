// 包 version：构建信息注入点
// 背景：通过 -ldflags 在构建时写入提交号，便于前端与日志标识当前版本
package version

var Commit = "dev"
