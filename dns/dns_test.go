package dns_test

import (
	"errors"
	"net"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	mdns "github.com/miekg/dns"

	"github.com/ghettovoice/sipflow/dns"
)

// startServer runs a name server answering PTR queries from ptrs.
func startServer(t *testing.T, ptrs map[string]string) (addr string, queries *atomic.Int32) {
	t.Helper()

	pc, err := net.ListenPacket("udp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("net.ListenPacket() error = %v, want nil", err)
	}

	queries = new(atomic.Int32)
	started := make(chan struct{})
	srv := &mdns.Server{
		PacketConn:        pc,
		NotifyStartedFunc: func() { close(started) },
		Handler: mdns.HandlerFunc(func(w mdns.ResponseWriter, req *mdns.Msg) {
			queries.Add(1)
			m := new(mdns.Msg)
			m.SetReply(req)
			q := req.Question[0]
			switch name, ok := ptrs[q.Name]; {
			case q.Name == "9.9.9.9.in-addr.arpa.":
				m.Rcode = mdns.RcodeServerFailure
			case ok && q.Qtype == mdns.TypePTR:
				m.Answer = append(m.Answer, &mdns.PTR{
					Hdr: mdns.RR_Header{Name: q.Name, Rrtype: mdns.TypePTR, Class: mdns.ClassINET, Ttl: 60},
					Ptr: name,
				})
			default:
				m.Rcode = mdns.RcodeNameError
			}
			_ = w.WriteMsg(m)
		}),
	}
	go func() { _ = srv.ActivateAndServe() }()
	t.Cleanup(func() { _ = srv.Shutdown() })

	select {
	case <-started:
	case <-time.After(5 * time.Second):
		t.Fatal("name server did not start")
	}
	return pc.LocalAddr().String(), queries
}

func TestResolver_LookupAddr(t *testing.T) {
	t.Parallel()

	ns, queries := startServer(t, map[string]string{
		"1.0.0.10.in-addr.arpa.": "pbx.example.com.",
	})
	r := &dns.Resolver{NameServer: ns, Timeout: time.Second}

	cases := []struct {
		name    string
		addr    string
		want    []string
		wantErr bool
	}{
		{"found", "10.0.0.1", []string{"pbx.example.com."}, false},
		{"not found", "10.0.0.2", []string{}, false},
		{"server failure", "9.9.9.9", nil, true},
		{"not an ip", "pbx.example.com", nil, true},
	}

	for _, c := range cases {
		got, err := r.LookupAddr(t.Context(), c.addr)
		if (err != nil) != c.wantErr {
			t.Errorf("r.LookupAddr(%q) error = %v, want error %v", c.addr, err, c.wantErr)
			continue
		}
		if c.wantErr {
			var dnsErr *net.DNSError
			if !errors.As(err, &dnsErr) {
				t.Errorf("r.LookupAddr(%q) error = %T, want *net.DNSError", c.addr, err)
			}
			continue
		}
		if diff := cmp.Diff(got, c.want); diff != "" {
			t.Errorf("r.LookupAddr(%q) diff (-got +want):\n%v", c.addr, diff)
		}
	}

	// answers and misses are cached, failures are not
	before := queries.Load()
	r.LookupAddr(t.Context(), "10.0.0.1")
	r.LookupAddr(t.Context(), "10.0.0.2")
	if got := queries.Load() - before; got != 0 {
		t.Errorf("cached lookups sent %d queries, want 0", got)
	}
	r.LookupAddr(t.Context(), "9.9.9.9")
	if got := queries.Load() - before; got != 1 {
		t.Errorf("failed lookup retry sent %d queries, want 1", got)
	}

	r.Clear()
	r.LookupAddr(t.Context(), "10.0.0.1")
	if got := queries.Load() - before; got != 2 {
		t.Errorf("lookups after clear sent %d queries, want 2", got)
	}
}

func TestResolver_LookupAddr_Concurrent(t *testing.T) {
	t.Parallel()

	ns, queries := startServer(t, map[string]string{
		"1.0.0.10.in-addr.arpa.": "pbx.example.com.",
	})
	r := &dns.Resolver{NameServer: ns}

	var wg sync.WaitGroup
	for range 10 {
		wg.Go(func() {
			names, err := r.LookupAddr(t.Context(), "10.0.0.1")
			if err != nil || len(names) != 1 {
				t.Errorf("r.LookupAddr() = %v, %v", names, err)
			}
		})
	}
	wg.Wait()

	if got := queries.Load(); got != 1 {
		t.Errorf("concurrent lookups sent %d queries, want 1", got)
	}
}
