package validate

import (
	"fmt"
	"strings"

	"github.com/KevinKickass/cangen/internal/model"
	"github.com/KevinKickass/cangen/internal/report"
)

// Validate checks one message set. Whole-set problems become errors in rep;
// entity problems become warnings and the entity is disabled, truncated or
// clamped in place so the generator sees only what it can emit.
func Validate(ms *model.MessageSet, rep *report.Report) {
	c := &checker{ms: ms, rep: rep}

	if strings.TrimSpace(ms.Name) == "" {
		rep.AddError(report.Issue{
			Code:    report.CodeSetMissingName,
			Message: "Message set name is required",
			Path:    "/name",
		})
	}

	c.checkBuses()
	for _, bus := range ms.SortedBuses() {
		for _, msg := range bus.SortedMessages() {
			c.checkMessage(bus, msg)
		}
	}
	c.checkGenericNames()
}

// Sets checks a group of message sets compiled into one image.
func Sets(sets []*model.MessageSet, rep *report.Report) {
	seen := map[string]bool{}
	for _, ms := range sets {
		if ms.Name == "" {
			continue
		}
		if seen[ms.Name] {
			rep.AddError(report.Issue{
				Code:       report.CodeSetDuplicate,
				MessageSet: ms.Name,
				Message:    fmt.Sprintf("Message set %q is listed more than once", ms.Name),
				Path:       "/name",
			})
		}
		seen[ms.Name] = true
	}
}

type checker struct {
	ms  *model.MessageSet
	rep *report.Report
}

func (c *checker) warn(code, path, hint, format string, args ...any) {
	c.rep.AddWarning(report.Issue{
		Code:       code,
		MessageSet: c.ms.Name,
		Path:       path,
		Hint:       hint,
		Message:    fmt.Sprintf(format, args...),
	})
}

func (c *checker) checkBuses() {
	byController := map[int]string{}

	for _, bus := range c.ms.SortedBuses() {
		if !bus.Declared {
			continue
		}
		base := "/buses/" + bus.Name

		if bus.Speed == nil {
			c.rep.AddError(report.Issue{
				Code:       report.CodeBusMissingSpeed,
				MessageSet: c.ms.Name,
				Message:    fmt.Sprintf("Bus %s is missing the 'speed' attribute", bus.Name),
				Path:       base + "/speed",
			})
		}

		if !bus.Usable() {
			bus.Enabled = false
			c.warn(report.CodeBusBadController, base+"/controller",
				fmt.Sprintf("use one of %v", model.ValidControllers),
				"Bus %s uses controller %d, its messages will be disabled", bus.Name, bus.Controller)
			continue
		}

		if other, taken := byController[bus.Controller]; taken {
			bus.Enabled = false
			c.warn(report.CodeBusDuplicate, base+"/controller", "",
				"Bus %s shares controller %d with bus %s, its messages will be disabled",
				bus.Name, bus.Controller, other)
			continue
		}
		byController[bus.Controller] = bus.Name
	}
}

func (c *checker) checkMessage(bus *model.CanBus, msg *model.Message) {
	base := fmt.Sprintf("/messages/%s", model.FormatID(msg.ID))

	switch {
	case !bus.Declared:
		if msg.Enabled {
			c.warn(report.CodeMessageNoBus, base+"/bus", "declare the bus under 'buses'",
				"Message %s (%s) references undefined bus %q and will be disabled", msg.Name, model.FormatID(msg.ID), bus.Name)
		}
		msg.Enabled = false
	case !bus.Usable():
		msg.Enabled = false
	}

	for _, sig := range msg.SortedSignals() {
		c.checkSignal(base+"/signals/"+sig.Name, sig)
	}
}

func (c *checker) checkSignal(path string, sig *model.Signal) {
	if !sig.Complete() {
		sig.Enabled = false
		c.warn(report.CodeSignalIncomplete, path, "set both bit_position and bit_size",
			"%s (generic name: %s) is incomplete and will be excluded", sig.Name, sig.GenericName)
		return
	}

	if sig.Size() < 1 || sig.Size() > 64 {
		sig.Enabled = false
		c.warn(report.CodeSignalRange, path+"/bit_size", "",
			"%s has bit_size %d, outside 1..64, and will be excluded", sig.GenericName, sig.Size())
		return
	}

	// Emitted as computed; the firmware reader decides what it makes of it.
	if sig.BitPosition() < 0 || sig.BitPosition()+sig.Size() > 64 {
		hint := ""
		if sig.Message != nil && sig.Message.BitNumberingInverted {
			hint = "bit_numbering_inverted is set, check the numbering of bit_position"
		}
		c.warn(report.CodeSignalRange, path+"/bit_position", hint,
			"%s occupies bits %d..%d, outside the 64-bit payload",
			sig.GenericName, sig.BitPosition(), sig.BitPosition()+sig.Size()-1)
	}

	if len(sig.States) > model.MaxSignalStates {
		c.warn(report.CodeSignalTooMany, path+"/states", "",
			"Ignoring anything beyond %d states for %s", model.MaxSignalStates, sig.GenericName)
		sig.States = sig.States[:model.MaxSignalStates]
	}

	if sig.SendFrequency < 1 {
		c.warn(report.CodeSignalFrequency, path+"/send_frequency", "",
			"send_frequency %d for %s is below 1, using 1", sig.SendFrequency, sig.GenericName)
		sig.SendFrequency = 1
	}

	if !sig.SendSame && sig.SendFrequency != 1 {
		c.warn(report.CodeSignalThrottle, path, "",
			"Signal %s combines send_same and send_frequency - this is not recommended", sig.GenericName)
	}
}

// checkGenericNames rejects two active signals sharing a generic name, since
// host-side readers key their values by it.
func (c *checker) checkGenericNames() {
	owner := map[string]*model.Signal{}
	for _, sig := range c.ms.ActiveSignals() {
		first, dup := owner[sig.GenericName]
		if !dup {
			owner[sig.GenericName] = sig
			continue
		}
		c.rep.AddError(report.Issue{
			Code:       report.CodeSignalDuplicate,
			MessageSet: c.ms.Name,
			Message: fmt.Sprintf("Generic name %q is used by %s in %s and %s in %s",
				sig.GenericName, first.Name, model.FormatID(first.Message.ID), sig.Name, model.FormatID(sig.Message.ID)),
			Path: fmt.Sprintf("/messages/%s/signals/%s/generic_name", model.FormatID(sig.Message.ID), sig.Name),
			Meta: map[string]any{"generic_name": sig.GenericName},
		})
	}
}
