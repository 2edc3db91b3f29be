package predictor

import (
	"github.com/sirupsen/logrus"
)

var log = logrus.WithField("module", "predictor")
