package dispatch

import (
	"github.com/sirupsen/logrus"
)

var log = logrus.WithField("module", "dispatch")
