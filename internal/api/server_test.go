package api

import (
	"context"
	"log/slog"
	"testing"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/miradorstack/mirador-trainer/internal/config"
)

func TestServerServesTrainAndHealth(t *testing.T) {
	stub := &trainerStub{resp: sampleResponse(t)}
	server, err := NewServer(config.ServerConfig{Address: "127.0.0.1:0", GracefulTimeout: time.Second}, NewTrainerHandler(nil, stub), slog.Default())
	if err != nil {
		t.Fatalf("new server: %v", err)
	}
	go func() { _ = server.Start() }()
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), server.GracefulTimeout())
		defer cancel()
		server.Shutdown(ctx)
	})

	conn, err := grpc.NewClient(server.Address(), grpc.WithTransportCredentials(insecure.NewCredentials()))
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	health, err := healthpb.NewHealthClient(conn).Check(ctx, &healthpb.HealthCheckRequest{Service: TrainerEngineServiceName})
	if err != nil {
		t.Fatalf("health check: %v", err)
	}
	if health.GetStatus() != healthpb.HealthCheckResponse_SERVING {
		t.Fatalf("unexpected health status %s", health.GetStatus())
	}

	req, _ := structpb.NewStruct(map[string]any{"runs": []any{"a"}})
	out, err := NewTrainerEngineClient(conn).Train(ctx, req)
	if err != nil {
		t.Fatalf("train: %v", err)
	}
	if out.GetFields()["run_id"].GetStringValue() != "run-1" {
		t.Fatalf("unexpected response %v", out)
	}
	if len(stub.got.Runs) != 1 || stub.got.Runs[0] != "a" {
		t.Fatalf("request not forwarded: %+v", stub.got)
	}
}
