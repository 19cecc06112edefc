package main

import (
	"bytes"
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"energy-exchange/internal/auth"
	oracle "energy-exchange/internal/oracle/domain"
	"energy-exchange/internal/oracle/infrastructure/signature"
)

type config struct {
	baseURL      string
	jwtSecret    string
	ingestSecret string
	meterSecret  string
	admin        string
	buyer        string
	sellerPrefix string
	sellerCount  int
	readingValue uint64
	buyerCredits uint64
	offerAmount  uint64
	price        uint64
	tradeAmount  uint64
	idsOut       string
}

type client struct {
	baseURL string
	secret  []byte
	http    *http.Client
}

func main() {
	cfg := parseConfig()
	if cfg.baseURL == "" || cfg.jwtSecret == "" || cfg.ingestSecret == "" {
		log.Fatal("base-url, jwt-secret and ingest-secret are required")
	}
	if cfg.sellerCount <= 0 {
		log.Fatal("seller-count must be > 0")
	}

	ctx := context.Background()
	c := &client{
		baseURL: strings.TrimRight(cfg.baseURL, "/"),
		secret:  []byte(cfg.jwtSecret),
		http:    &http.Client{Timeout: 30 * time.Second},
	}

	var verifier *signature.HMACVerifier
	if cfg.meterSecret != "" {
		v, err := signature.NewHMACVerifier(cfg.meterSecret)
		if err != nil {
			log.Fatalf("meter signer: %v", err)
		}
		verifier = v
	}

	sellers := make([]string, 0, cfg.sellerCount)
	for i := 0; i < cfg.sellerCount; i++ {
		sellers = append(sellers, fmt.Sprintf("%s%03d", cfg.sellerPrefix, i+1))
	}

	log.Printf("registering meters: sellers=%d", len(sellers))
	for _, seller := range sellers {
		status, err := c.do(ctx, http.MethodPost, "/api/v1/meters", seller, auth.RoleOperator, map[string]any{
			"meter_id":   meterID(seller),
			"meter_type": string(oracle.MeterTypeSolar),
			"location":   "loadgen",
		}, nil)
		if err != nil {
			log.Fatalf("register meter %s: %v", meterID(seller), err)
		}
		if status == http.StatusConflict {
			log.Printf("meter %s already registered", meterID(seller))
		}
	}

	log.Printf("submitting readings: value=%d", cfg.readingValue)
	if err := submitReadings(ctx, c, cfg, sellers, verifier); err != nil {
		log.Fatalf("submit readings: %v", err)
	}

	if cfg.buyerCredits > 0 {
		log.Printf("minting buyer credits: buyer=%s amount=%d", cfg.buyer, cfg.buyerCredits)
		_, err := c.do(ctx, http.MethodPost, "/api/v1/ledger/mint", cfg.admin, auth.RoleAdmin, map[string]any{
			"recipient":       cfg.buyer,
			"amount":          cfg.buyerCredits,
			"energy_produced": cfg.buyerCredits,
			"meter_id":        "loadgen",
		}, nil)
		if err != nil {
			log.Fatalf("mint buyer credits: %v", err)
		}
	}

	var ids []string
	for _, seller := range sellers {
		var offer struct {
			OfferID string `json:"offer_id"`
		}
		_, err := c.do(ctx, http.MethodPost, "/api/v1/offers", seller, auth.RoleOperator, map[string]any{
			"energy_amount":  cfg.offerAmount,
			"price_per_unit": cfg.price,
			"offer_type":     "immediate",
			"duration_hours": 24,
		}, &offer)
		if err != nil {
			log.Fatalf("create offer for %s: %v", seller, err)
		}
		if offer.OfferID == "" {
			log.Fatalf("create offer for %s: rejected, is the market active?", seller)
		}

		var trade struct {
			TradeID string `json:"trade_id"`
		}
		_, err = c.do(ctx, http.MethodPost, "/api/v1/offers/"+offer.OfferID+"/trades", cfg.buyer, auth.RoleOperator, map[string]any{
			"energy_amount": cfg.tradeAmount,
		}, &trade)
		if err != nil {
			log.Fatalf("trade on %s: %v", offer.OfferID, err)
		}
		ids = append(ids, offer.OfferID+","+trade.TradeID)
		log.Printf("seller %s offer=%s trade=%s", seller, offer.OfferID, trade.TradeID)
	}

	if cfg.idsOut != "" {
		if err := writeLines(cfg.idsOut, ids); err != nil {
			log.Fatalf("write ids: %v", err)
		}
		log.Printf("offer and trade ids written to %s", cfg.idsOut)
	}
	log.Printf("loadgen completed")
}

func meterID(seller string) string {
	return "meter-" + seller
}

func submitReadings(ctx context.Context, c *client, cfg config, sellers []string, verifier *signature.HMACVerifier) error {
	type reading struct {
		MeterID     string `json:"meter_id"`
		Value       uint64 `json:"value"`
		ReadingType string `json:"reading_type"`
		Signature   string `json:"signature"`
	}
	batch := struct {
		Readings []reading `json:"readings"`
	}{}
	for _, seller := range sellers {
		id := meterID(seller)
		sig := "unsigned"
		if verifier != nil {
			sig = verifier.Sign(oracle.CanonicalPayload(id, cfg.readingValue, oracle.ReadingTypeProduction))
		}
		batch.Readings = append(batch.Readings, reading{
			MeterID:     id,
			Value:       cfg.readingValue,
			ReadingType: string(oracle.ReadingTypeProduction),
			Signature:   sig,
		})
	}
	body, err := json.Marshal(batch)
	if err != nil {
		return err
	}
	timestamp := strconv.FormatInt(time.Now().Unix(), 10)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/ingest/meters/readings", bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set(auth.IngestTimestampHeader, timestamp)
	req.Header.Set(auth.IngestSignatureHeader, auth.SignIngest([]byte(cfg.ingestSecret), timestamp, body))
	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		// Throttled readings are expected when re-running within the reading interval.
		if resp.StatusCode == http.StatusConflict {
			log.Printf("some readings rejected: %s", strings.TrimSpace(string(msg)))
			return nil
		}
		return fmt.Errorf("http %d: %s", resp.StatusCode, strings.TrimSpace(string(msg)))
	}
	return nil
}

// do sends a JSON request as subject. A 409 is returned to the caller instead
// of failing so re-runs can skip records that already exist.
func (c *client) do(ctx context.Context, method, path, subject string, role auth.Role, body any, out any) (int, error) {
	token, err := auth.IssueJWT(subject, role, c.secret, time.Hour, time.Now())
	if err != nil {
		return 0, err
	}
	payload, err := json.Marshal(body)
	if err != nil {
		return 0, err
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, bytes.NewReader(payload))
	if err != nil {
		return 0, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+token)
	resp, err := c.http.Do(req)
	if err != nil {
		return 0, err
	}
	defer resp.Body.Close()
	if resp.StatusCode == http.StatusConflict {
		return resp.StatusCode, nil
	}
	if resp.StatusCode >= 300 {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return resp.StatusCode, fmt.Errorf("http %d: %s", resp.StatusCode, strings.TrimSpace(string(msg)))
	}
	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return resp.StatusCode, err
		}
	}
	return resp.StatusCode, nil
}

func parseConfig() config {
	cfg := config{}
	flag.StringVar(&cfg.baseURL, "base-url", envOrDefault("BASE_URL", "http://localhost:8080"), "exchange API base URL")
	flag.StringVar(&cfg.jwtSecret, "jwt-secret", envOrDefault("AUTH_JWT_SECRET", ""), "JWT signing secret")
	flag.StringVar(&cfg.ingestSecret, "ingest-secret", envOrDefault("INGEST_HMAC_SECRET", ""), "meter gateway HMAC secret")
	flag.StringVar(&cfg.meterSecret, "meter-secret", envOrDefault("METER_HMAC_SECRET", ""), "meter payload secret (hmac verification mode)")
	flag.StringVar(&cfg.admin, "admin", envOrDefault("LEDGER_AUTHORITY", "exchange-admin"), "ledger authority subject")
	flag.StringVar(&cfg.buyer, "buyer", envOrDefault("LOADGEN_BUYER", "buyer-001"), "buyer subject")
	flag.StringVar(&cfg.sellerPrefix, "seller-prefix", envOrDefault("SELLER_PREFIX", "seller-"), "seller subject prefix")
	flag.IntVar(&cfg.sellerCount, "seller-count", envOrInt("SELLER_COUNT", 10), "number of sellers")
	flag.Uint64Var(&cfg.readingValue, "reading-value", envOrUint("READING_VALUE", 50), "production reading per meter")
	flag.Uint64Var(&cfg.buyerCredits, "buyer-credits", envOrUint("BUYER_CREDITS", 10000), "credits minted to the buyer (0 skips)")
	flag.Uint64Var(&cfg.offerAmount, "offer-amount", envOrUint("OFFER_AMOUNT", 40), "energy per offer")
	flag.Uint64Var(&cfg.price, "price", envOrUint("PRICE", 2), "price per unit")
	flag.Uint64Var(&cfg.tradeAmount, "trade-amount", envOrUint("TRADE_AMOUNT", 10), "energy bought per offer")
	flag.StringVar(&cfg.idsOut, "ids-out", envOrDefault("IDS_OUT", ""), "file to write offer,trade id pairs")
	flag.Parse()
	return cfg
}

func writeLines(path string, lines []string) error {
	dir := filepath.Dir(path)
	if dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return err
		}
	}
	return os.WriteFile(path, []byte(strings.Join(lines, "\n")), 0o644)
}

func envOrDefault(key, fallback string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return fallback
}

func envOrInt(key string, fallback int) int {
	raw := os.Getenv(key)
	if raw == "" {
		return fallback
	}
	value, err := strconv.Atoi(raw)
	if err != nil {
		return fallback
	}
	return value
}

func envOrUint(key string, fallback uint64) uint64 {
	raw := os.Getenv(key)
	if raw == "" {
		return fallback
	}
	value, err := strconv.ParseUint(raw, 10, 64)
	if err != nil {
		return fallback
	}
	return value
}
