package model

import "testing"

func TestHolderWaitlistKey(t *testing.T) {
    cases := []struct {
        h    Holder
        want string
    }{
        {Holder{Email: " Ann@Example.com "}, "ann@example.com"},
        {Holder{UserID: 77, Email: "ann@example.com"}, "ann@example.com"},
        {Holder{UserID: 77}, "user:77"},
    }
    for _, c := range cases {
        if got := c.h.WaitlistKey(); got != c.want {
            t.Errorf("%+v.WaitlistKey() = %q, want %q", c.h, got, c.want)
        }
    }
}
