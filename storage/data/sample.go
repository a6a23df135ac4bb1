// Copyright 2026 gorse Project Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
// http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package data

import (
	"math/rand"
	"strconv"

	"github.com/jaswdr/faker"
)

// SampleUsers returns the users inserted into an empty database.
func SampleUsers() []User {
	return []User{
		{"1", "Alice Smith"},
		{"2", "Bob Johnson"},
		{"3", "Charlie Brown"},
		{"4", "Diana Prince"},
		{"5", "Ethan Hunt"},
		{"6", "Fiona Gallagher"},
		{"7", "George Bailey"},
		{"8", "Hannah Baker"},
	}
}

// SampleItems returns the items inserted into an empty database.
func SampleItems() []Item {
	return []Item{
		{"1", "Comfortable Office Chair", "Furniture", "Ergonomic office chair with lumbar support and breathable mesh back.", 4.5,
			"https://images.unsplash.com/photo-1589384267710-7a25bc5b4862?q=80&w=500&auto=format&fit=crop"},
		{"2", "Adjustable Standing Desk", "Furniture", "Electric height-adjustable desk with memory settings and spacious work surface.", 4.8,
			"https://images.unsplash.com/photo-1518655048521-f130df041f66?q=80&w=500&auto=format&fit=crop"},
		{"3", "Mechanical Keyboard", "Electronics", "Tactile mechanical keyboard with customizable RGB lighting and programmable keys.", 4.3,
			"https://images.unsplash.com/photo-1561112078-7d24e04c3407?q=80&w=500&auto=format&fit=crop"},
		{"4", "Ultrawide Monitor", "Electronics", "34-inch curved ultrawide monitor with high resolution and excellent color accuracy.", 4.7,
			"https://images.unsplash.com/photo-1607706009771-cbcce7b9d83c?q=80&w=500&auto=format&fit=crop"},
		{"5", "Noise-Canceling Headphones", "Audio", "Premium wireless headphones with active noise cancellation and long battery life.", 4.6,
			"https://images.unsplash.com/photo-1546435770-a3e426bf472b?q=80&w=500&auto=format&fit=crop"},
		{"6", "Smart LED Desk Lamp", "Lighting", "Adjustable LED desk lamp with multiple color temperatures and brightness levels.", 4.2,
			"https://images.unsplash.com/photo-1534105615256-13940a56ff44?q=80&w=500&auto=format&fit=crop"},
		{"7", "Laptop Stand", "Accessories", "Adjustable aluminum laptop stand for improved ergonomics and cooling.", 4.4,
			"https://images.unsplash.com/photo-1675365889958-1f217bf8538e?q=80&w=500&auto=format&fit=crop"},
		{"8", "Wireless Mouse", "Electronics", "Ergonomic wireless mouse with adjustable DPI and quiet click buttons.", 4.1,
			"https://images.unsplash.com/photo-1527864550417-7fd91fc51a46?q=80&w=500&auto=format&fit=crop"},
		{"9", "Bluetooth Speaker", "Audio", "Portable Bluetooth speaker with rich bass and 20-hour battery life.", 4.3,
			"https://images.unsplash.com/photo-1589001181560-f483fbc24338?q=80&w=500&auto=format&fit=crop"},
		{"10", "External SSD", "Storage", "Fast external SSD with USB-C connection and shock-resistant design.", 4.7,
			"https://images.unsplash.com/photo-1597333193168-5d59bdff8e08?q=80&w=500&auto=format&fit=crop"},
		{"11", "Desk Organizer", "Office", "Multi-compartment desk organizer for pens, sticky notes, and small items.", 4.0,
			"https://images.unsplash.com/photo-1498050108023-c5249f4df085?q=80&w=500&auto=format&fit=crop"},
		{"12", "Webcam", "Electronics", "HD webcam with auto-focus and built-in noise-canceling microphone.", 4.2,
			"https://images.unsplash.com/photo-1596314843256-ce8ef25b2cac?q=80&w=500&auto=format&fit=crop"},
	}
}

// SampleRatings returns the ratings inserted into an empty database.
func SampleRatings() []Rating {
	return []Rating{
		{"1", "1", 4.5}, {"1", "3", 5.0}, {"1", "5", 4.0},
		{"2", "2", 4.5}, {"2", "4", 5.0}, {"2", "6", 3.5},
		{"3", "1", 3.5}, {"3", "7", 4.5}, {"3", "9", 4.0},
		{"4", "2", 5.0}, {"4", "8", 4.0}, {"4", "10", 4.5},
		{"5", "3", 3.5}, {"5", "11", 4.0}, {"5", "12", 4.5},
		{"6", "4", 4.0}, {"6", "6", 3.0}, {"6", "10", 5.0},
		{"7", "5", 4.5}, {"7", "7", 3.5}, {"7", "9", 4.0},
		{"8", "8", 3.0}, {"8", "11", 4.5}, {"8", "12", 4.0},
	}
}

var categories = []string{"Furniture", "Electronics", "Audio", "Lighting", "Accessories", "Storage", "Office"}

// FakeData generates users, items and about density*users*items ratings
// with scores in half steps between 1 and 5.
func FakeData(numUsers, numItems int, density float64, seed int64) ([]User, []Item, []Rating) {
	source := rand.NewSource(seed)
	fake := faker.NewWithSeed(source)
	rng := rand.New(source)
	users := make([]User, numUsers)
	for i := range users {
		users[i] = User{UserId: strconv.Itoa(i + 1), Name: fake.Person().Name()}
	}
	items := make([]Item, numItems)
	for i := range items {
		items[i] = Item{
			ItemId:      strconv.Itoa(i + 1),
			Name:        fake.Company().Name(),
			Category:    fake.RandomStringElement(categories),
			Description: fake.Lorem().Sentence(10),
			Rating:      float64(fake.IntBetween(2, 10)) / 2,
			ImageURL:    fake.Internet().URL(),
		}
	}
	var ratings []Rating
	for _, user := range users {
		for _, item := range items {
			if rng.Float64() < density {
				ratings = append(ratings, Rating{
					UserId: user.UserId,
					ItemId: item.ItemId,
					Score:  float64(fake.IntBetween(2, 10)) / 2,
				})
			}
		}
	}
	return users, items, ratings
}
