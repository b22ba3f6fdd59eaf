// Command detector-sim stands in for the external detector during local
// testing. It writes synthetic detection images named the way the detector
// names them into a directory, or uploads them to the server.
package main

import (
	"bytes"
	"context"
	"flag"
	"fmt"
	"image"
	"image/color"
	"image/jpeg"
	"io"
	"log"
	"math/rand"
	"mime/multipart"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/google/uuid"
	"golang.org/x/time/rate"
)

const detectorLayout = "2006-01-02_15-04-05"

func main() {
	dir := flag.String("dir", "./Output_images", "Directory to write detection images into")
	uploadURL := flag.String("upload", "", "Upload to this URL (e.g. http://localhost:8080/upload-event) instead of writing files")
	concurrency := flag.Int("c", 1, "Number of concurrent workers")
	duration := flag.Duration("d", 30*time.Second, "How long to run")
	count := flag.Int64("n", 0, "Stop after this many images (0 = until -d elapses)")
	rps := flag.Float64("rate", 2, "Images per second")
	channels := flag.Int("channels", 4, "Number of camera channels")
	categories := flag.String("categories", "Fall_Detection,Intrusion,Fire,Loitering", "Comma-separated detection categories")
	flag.Parse()

	cats := strings.Split(*categories, ",")
	if *channels < 1 || len(cats) == 0 {
		log.Fatal("need at least one channel and one category")
	}

	if *uploadURL == "" {
		if err := os.MkdirAll(*dir, 0o755); err != nil {
			log.Fatalf("failed to create %s: %v", *dir, err)
		}
		log.Printf("Writing detections into %s", *dir)
	} else {
		log.Printf("Uploading detections to %s", *uploadURL)
	}
	log.Printf("Concurrency: %d, Duration: %s, Rate: %.2f/s", *concurrency, *duration, *rps)

	ctx, cancel := context.WithTimeout(context.Background(), *duration)
	defer cancel()
	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	limiter := rate.NewLimiter(rate.Limit(*rps), 1)
	client := &http.Client{Timeout: 10 * time.Second}

	var wg sync.WaitGroup
	var seq, successCount, errorCount atomic.Int64
	start := time.Now()

	for i := 0; i < *concurrency; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			rng := rand.New(rand.NewSource(time.Now().UnixNano() + int64(i)))

			for {
				if err := limiter.Wait(ctx); err != nil {
					return
				}
				n := seq.Add(1)
				if *count > 0 && n > *count {
					cancel()
					return
				}

				name := detectionName(1+rng.Intn(*channels), cats[rng.Intn(len(cats))], time.Now(), n)
				img, err := syntheticJPEG(rng)
				if err == nil {
					if *uploadURL != "" {
						err = upload(ctx, client, *uploadURL, name, img)
					} else {
						err = writeAtomic(*dir, name, img)
					}
				}
				if err != nil {
					if ctx.Err() != nil {
						return
					}
					log.Printf("failed to emit %s: %v", name, err)
					errorCount.Add(1)
					continue
				}
				successCount.Add(1)
			}
		}()
	}

	wg.Wait()
	elapsed := time.Since(start)

	log.Println("Detector simulation finished.")
	log.Printf("Images emitted: %d", successCount.Load())
	log.Printf("Errors: %d", errorCount.Load())
	log.Printf("Actual rate: %.2f/s", float64(successCount.Load())/elapsed.Seconds())
}

// detectionName builds ch<N>_<Category>_<YYYY-MM-DD_HH-MM-SS>_<seq>.jpg.
// The sequence keeps names unique when several images land in one second.
func detectionName(channel int, category string, at time.Time, seq int64) string {
	category = strings.ReplaceAll(strings.TrimSpace(category), " ", "_")
	return fmt.Sprintf("ch%d_%s_%s_%04d.jpg", channel, category, at.Format(detectorLayout), seq)
}

func syntheticJPEG(rng *rand.Rand) ([]byte, error) {
	img := image.NewRGBA(image.Rect(0, 0, 64, 48))
	c := color.RGBA{R: uint8(rng.Intn(256)), G: uint8(rng.Intn(256)), B: uint8(rng.Intn(256)), A: 255}
	for y := 0; y < 48; y++ {
		for x := 0; x < 64; x++ {
			img.Set(x, y, c)
		}
	}
	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, img, nil); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// writeAtomic writes to a dot-file first so the scanner never picks up a
// partial image.
func writeAtomic(dir, name string, data []byte) error {
	tmp := filepath.Join(dir, "."+uuid.NewString()+".part")
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return err
	}
	if err := os.Rename(tmp, filepath.Join(dir, name)); err != nil {
		os.Remove(tmp)
		return err
	}
	return nil
}

func upload(ctx context.Context, client *http.Client, url, name string, data []byte) error {
	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	fw, err := mw.CreateFormFile("image", name)
	if err != nil {
		return err
	}
	if _, err := fw.Write(data); err != nil {
		return err
	}
	if err := mw.WriteField("description", "simulated detection"); err != nil {
		return err
	}
	if err := mw.Close(); err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, &body)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())

	resp, err := client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, resp.Body)
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("unexpected status %s", resp.Status)
	}
	return nil
}
