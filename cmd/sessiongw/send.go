package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"session-gateway/client"
	"session-gateway/codec"
	"session-gateway/loadbalance"
	"session-gateway/message"
	"session-gateway/registry"
)

type sendFlags struct {
	gateways  []string
	endpoints []string
	service   string
	codec     string
	balancer  string
	httpURL   string
	timeout   time.Duration
	logLevel  string

	header    uint8
	clientID  uint64
	sessionID uint32
	players   []string
}

var errGatewayFailure = errors.New("gateway reported failure")

const sendExample = `  sessiongw send --gateway 127.0.0.1:9090 --session-id 7 --player alice --player bob
  sessiongw send --registry 127.0.0.1:2379 --balancer consistent_hash --session-id 7
  sessiongw send --http http://127.0.0.1:8080 --client-id 42 --session-id 7`

func newSendCmd() *cobra.Command {
	var f sendFlags
	cmd := &cobra.Command{
		Use:     "send",
		Short:   "Send one create-session request and print the response",
		Example: sendExample,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, cancel := context.WithTimeout(cmd.Context(), f.timeout)
			defer cancel()

			req := &message.SessionRequest{
				Header:           f.header,
				ClientIdentifier: f.clientID,
				SessionID:        f.sessionID,
				PlayerIDs:        f.players,
			}
			if req.PlayerIDs == nil {
				req.PlayerIDs = []string{}
			}

			var (
				resp *message.SessionResponse
				err  error
			)
			if f.httpURL != "" {
				resp, err = sendHTTP(ctx, f.httpURL, req)
			} else {
				resp, err = f.sendRPC(ctx, req)
			}
			if err != nil {
				return err
			}

			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			if err := enc.Encode(resp); err != nil {
				return err
			}
			if !resp.OK() {
				return errGatewayFailure
			}
			return nil
		},
	}

	fl := cmd.Flags()
	fl.StringSliceVar(&f.gateways, "gateway", []string{"127.0.0.1:9090"}, "gateway RPC addresses, ignored with --registry")
	fl.StringSliceVar(&f.endpoints, "registry", nil, "etcd endpoints to discover gateways from")
	fl.StringVar(&f.service, "service", client.DefaultService, "registry service name")
	fl.StringVar(&f.codec, "codec", "json", "RPC codec: json|binary|cbor")
	fl.StringVar(&f.balancer, "balancer", "round_robin", "round_robin|weighted_random|consistent_hash")
	fl.StringVar(&f.httpURL, "http", "", "call the HTTP API at this base URL instead of RPC")
	fl.DurationVar(&f.timeout, "timeout", 5*time.Second, "request timeout")
	fl.StringVar(&f.logLevel, "log-level", "warn", "debug|info|warn|error")

	fl.Uint8Var(&f.header, "header", 0, "frame header byte")
	fl.Uint64Var(&f.clientID, "client-id", 0, "client identifier")
	fl.Uint32Var(&f.sessionID, "session-id", 0, "session id")
	fl.StringArrayVar(&f.players, "player", nil, "player id, repeatable")
	return cmd
}

func (f *sendFlags) sendRPC(ctx context.Context, req *message.SessionRequest) (*message.SessionResponse, error) {
	ct, err := codec.ParseCodecType(f.codec)
	if err != nil {
		return nil, err
	}
	bal, err := loadbalance.New(f.balancer)
	if err != nil {
		return nil, err
	}

	var reg registry.Registry
	if len(f.endpoints) > 0 {
		logger, err := toolLogger(f.logLevel)
		if err != nil {
			return nil, err
		}
		defer logger.Sync()
		etcdReg, err := registry.NewEtcdRegistry(f.endpoints, f.timeout, logger)
		if err != nil {
			return nil, err
		}
		defer etcdReg.Close()
		reg = etcdReg
	} else {
		instances := make([]registry.ServiceInstance, 0, len(f.gateways))
		for _, addr := range f.gateways {
			instances = append(instances, registry.ServiceInstance{Addr: addr})
		}
		reg = registry.Static(f.service, instances...)
	}

	c, err := client.NewClient(client.Options{
		Registry: reg,
		Balancer: bal,
		Service:  f.service,
		Codec:    ct,
		PoolSize: 1,
	})
	if err != nil {
		return nil, err
	}
	defer c.Close()
	return c.CreateSession(ctx, req)
}

// sendHTTP posts req to baseURL/create_session. Error statuses still carry a
// SessionResponse body, which is returned as is.
func sendHTTP(ctx context.Context, baseURL string, req *message.SessionRequest) (*message.SessionResponse, error) {
	body, err := json.Marshal(req)
	if err != nil {
		return nil, err
	}
	url := strings.TrimRight(baseURL, "/") + "/create_session"
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	httpReq.Header.Set("Content-Type", "application/json")

	httpResp, err := http.DefaultClient.Do(httpReq)
	if err != nil {
		return nil, err
	}
	defer httpResp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(httpResp.Body, 1<<20))
	if err != nil {
		return nil, err
	}
	var resp message.SessionResponse
	if err := json.Unmarshal(raw, &resp); err != nil {
		return nil, fmt.Errorf("%s: status %d: %s", url, httpResp.StatusCode, bytes.TrimSpace(raw))
	}
	return &resp, nil
}

