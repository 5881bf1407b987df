// 包 notify：计划提交的邮件通知
// 背景：纯文本格式约定——提交人、计划标识/版本/名称、立法机构名称，
// 以及提交表单的键值转储；与邮件投递方只有格式契约，无业务逻辑。
package notify

import (
	"bytes"
	"net/smtp"
	"os"
	"sort"
	"strings"
	"text/template"

	"district-api/internal/logger"
	"district-api/internal/metrics"
)

// Submission: 通知模板的数据载体
type Submission struct {
	UserName        string
	PlanID          int64
	PlanVersion     int
	PlanName        string
	LegislativeBody string
	Fields          map[string]string
}

const submissionTemplate = `A plan has been submitted.

User: {{.UserName}}
Plan: {{.PlanID}} (version {{.PlanVersion}})
Name: {{.PlanName}}
Legislative body: {{.LegislativeBody}}

Submitted form data:
{{range .SortedFields}}  {{.Key}}: {{.Value}}
{{end}}`

var tmpl = template.Must(template.New("submission").Parse(submissionTemplate))

type kv struct {
	Key   string
	Value string
}

type tmplData struct {
	Submission
	SortedFields []kv
}

// Render: 渲染通知正文；键值按键名排序保证输出稳定
func Render(s Submission) (string, error) {
	data := tmplData{Submission: s}
	keys := make([]string, 0, len(s.Fields))
	for k := range s.Fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		data.SortedFields = append(data.SortedFields, kv{Key: k, Value: s.Fields[k]})
	}
	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, data); err != nil {
		return "", err
	}
	return buf.String(), nil
}

// Send: 渲染并投递通知
// 背景：SMTP 未配置时仅落日志，保证开发环境不依赖邮件基础设施；
// 投递失败不回滚任何业务状态，通知是尽力而为的旁路。
func Send(s Submission) error {
	body, err := Render(s)
	if err != nil {
		metrics.NotifyTotal.WithLabelValues("render_error").Inc()
		return err
	}
	host := os.Getenv("SMTP_HOST")
	if host == "" {
		logger.L().Info("notify_logged", "plan_id", s.PlanID, "user", s.UserName)
		logger.L().Debug("notify_body", "body", body)
		metrics.NotifyTotal.WithLabelValues("logged").Inc()
		return nil
	}
	port := os.Getenv("SMTP_PORT")
	if port == "" {
		port = "25"
	}
	from := os.Getenv("SMTP_FROM")
	if from == "" {
		from = "district-api@localhost"
	}
	to := strings.Split(os.Getenv("SMTP_TO"), ",")
	msg := "From: " + from + "\r\n" +
		"To: " + strings.Join(to, ",") + "\r\n" +
		"Subject: Plan submitted: " + s.PlanName + "\r\n" +
		"\r\n" + body
	var auth smtp.Auth
	if user := os.Getenv("SMTP_USER"); user != "" {
		auth = smtp.PlainAuth("", user, os.Getenv("SMTP_PASSWORD"), host)
	}
	if err := smtp.SendMail(host+":"+port, auth, from, to, []byte(msg)); err != nil {
		logger.L().Error("notify_send_error", "err", err)
		metrics.NotifyTotal.WithLabelValues("send_error").Inc()
		return err
	}
	metrics.NotifyTotal.WithLabelValues("sent").Inc()
	logger.L().Info("notify_sent", "plan_id", s.PlanID, "to", strings.Join(to, ","))
	return nil
}
