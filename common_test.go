package kelpie_test

import (
	"fmt"

	"github.com/mistifyio/kelpie/internal/tests/common"
)

type CommonTestSuite struct {
	common.Suite
}

func testMsgFunc(prefix string) func(...interface{}) string {
	return func(val ...interface{}) string {
		if len(val) == 0 {
			return prefix
		}
		msgPrefix := prefix + " : "
		if len(val) == 1 {
			return msgPrefix + val[0].(string)
		}
		return msgPrefix + fmt.Sprintf(val[0].(string), val[1:]...)
	}
}
