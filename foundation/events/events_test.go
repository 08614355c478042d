package events_test

import (
	"encoding/json"
	"testing"

	"github.com/ardanlabs/powledger/foundation/events"
)

// Success and failure markers.
const (
	success = "\u2713"
	failed  = "\u2717"
)

func TestEvents(t *testing.T) {
	t.Log("Given the need to fan events out to receivers.")
	{
		t.Logf("\tTest 0:\tWhen two receivers are registered.")
		{
			evts := events.New()
			ch1 := evts.Acquire("1")
			ch2 := evts.Acquire("2")

			if evts.Subscribers() != 2 {
				t.Fatalf("\t%s\tTest 0:\tShould have two receivers.", failed)
			}
			t.Logf("\t%s\tTest 0:\tShould have two receivers.", success)

			evts.Send("hello")
			if <-ch1 != "hello" || <-ch2 != "hello" {
				t.Fatalf("\t%s\tTest 0:\tShould deliver to every receiver.", failed)
			}
			t.Logf("\t%s\tTest 0:\tShould deliver to every receiver.", success)

			if err := evts.SendJSON("block", map[string]int{"height": 3}); err != nil {
				t.Fatalf("\t%s\tTest 0:\tShould be able to send a typed event: %s", failed, err)
			}

			var env struct {
				Type string         `json:"type"`
				Data map[string]int `json:"data"`
			}
			if err := json.Unmarshal([]byte(<-ch1), &env); err != nil || env.Type != "block" || env.Data["height"] != 3 {
				t.Fatalf("\t%s\tTest 0:\tShould wrap the typed event in an envelope: %v", failed, err)
			}
			t.Logf("\t%s\tTest 0:\tShould wrap the typed event in an envelope.", success)

			if err := evts.Release("1"); err != nil {
				t.Fatalf("\t%s\tTest 0:\tShould be able to release a receiver: %s", failed, err)
			}
			if _, open := <-ch1; open {
				t.Fatalf("\t%s\tTest 0:\tShould close the released channel.", failed)
			}
			t.Logf("\t%s\tTest 0:\tShould close the released channel.", success)

			evts.Shutdown()
			<-ch2
			if _, open := <-ch2; open {
				t.Fatalf("\t%s\tTest 0:\tShould close every channel on shutdown.", failed)
			}
			t.Logf("\t%s\tTest 0:\tShould close every channel on shutdown.", success)
		}
	}
}
