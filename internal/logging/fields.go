package logging

import "github.com/sirupsen/logrus"

// BaseFields 构建 action + 配置路径等基础字段，便于不同入口复用。
func BaseFields(action, configPath string) logrus.Fields {
	return logrus.Fields{
		"action":     action,
		"configPath": configPath,
	}
}

// RequestFields 提供 package/decision/路径字段，供代理请求日志复用。
func RequestFields(pkg, decision, path string, stub bool) logrus.Fields {
	fields := logrus.Fields{
		"decision": decision,
		"path":     path,
		"stub":     stub,
	}
	if pkg != "" {
		fields["package"] = pkg
	}
	return fields
}
