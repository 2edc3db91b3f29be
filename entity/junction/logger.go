package junction

import "github.com/sirupsen/logrus"

// log 打印日志的快捷方式，固定模块名
var log = logrus.WithField("module", "junction")
