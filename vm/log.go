package vm

import (
	"github.com/tliron/commonlog"
)

var log = commonlog.GetLogger("callsite.vm")

func logTransition(from, to CacheState, name string) {
	if to == CacheMegamorphic {
		log.Infof("call site for %q went megamorphic", name)
		return
	}
	log.Debugf("call site for %q: %s -> %s", name, from, to)
}
